// Package plugin merges caller-supplied tools into the built-in catalog.
package plugin
