package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	t.Run("should expose every built-in tool once", func(t *testing.T) {
		defs := Builtins()
		names := Names(defs)

		assert.Equal(t, []string{
			DiscoverMerchant, ListCapabilities, BrowseProducts, SearchProducts, GetProduct,
			AddToCart, ViewCart, RemoveFromCart, InitiateCheckout, SubmitShipping,
			SubmitPayment, GetOrderStatus,
		}, names)
	})

	t.Run("should return object schemas", func(t *testing.T) {
		for _, def := range Builtins() {
			require.NotEmpty(t, def.Description, def.Name)
			assert.Equal(t, "object", def.Parameters["type"], def.Name)
			assert.Contains(t, def.Parameters, "properties", def.Name)
		}
	})

	t.Run("should return a fresh copy", func(t *testing.T) {
		defs := Builtins()
		defs[0].Name = "mutated"

		assert.Equal(t, DiscoverMerchant, Builtins()[0].Name)
	})
}

func TestIsBuiltin(t *testing.T) {
	assert.True(t, IsBuiltin(SubmitPayment))
	assert.False(t, IsBuiltin("weather"))
}
