// Package tools holds the static catalog of built-in shopping tools and their
// JSON-Schema parameter definitions.
package tools
