package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/shopagent/pkg/tools"
)

func weatherPlugin() Plugin {
	return Plugin{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []string{"city"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"city": args["city"], "tempC": 21}, nil
		},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("should merge plugins after built-ins", func(t *testing.T) {
		r, err := NewRegistry(tools.Builtins(), weatherPlugin())

		require.NoError(t, err)
		names := r.Names()
		assert.Len(t, names, len(tools.Builtins())+1)
		assert.Equal(t, tools.DiscoverMerchant, names[0])
		assert.Equal(t, "get_weather", names[len(names)-1])
		assert.True(t, r.Has("get_weather"))

		_, ok := r.Lookup("get_weather")
		assert.True(t, ok)
		_, ok = r.Lookup(tools.ViewCart)
		assert.False(t, ok)
	})

	t.Run("should reject a plugin shadowing a built-in", func(t *testing.T) {
		p := weatherPlugin()
		p.Name = tools.AddToCart

		_, err := NewRegistry(tools.Builtins(), p)

		assert.ErrorIs(t, err, ErrNameCollision)
		assert.ErrorContains(t, err, "built-in")
	})

	t.Run("should reject duplicate plugin names", func(t *testing.T) {
		_, err := NewRegistry(tools.Builtins(), weatherPlugin(), weatherPlugin())

		assert.ErrorIs(t, err, ErrNameCollision)
	})

	t.Run("should reject plugins without a name or handler", func(t *testing.T) {
		noName := weatherPlugin()
		noName.Name = " "
		_, err := NewRegistry(nil, noName)
		assert.ErrorIs(t, err, ErrInvalidPlugin)

		noHandler := weatherPlugin()
		noHandler.Handler = nil
		_, err = NewRegistry(nil, noHandler)
		assert.ErrorIs(t, err, ErrInvalidPlugin)
	})

	t.Run("should reject schemas that do not compile", func(t *testing.T) {
		p := weatherPlugin()
		p.Parameters = map[string]any{"type": "not-a-type"}

		_, err := NewRegistry(nil, p)
		assert.ErrorIs(t, err, ErrInvalidPlugin)
	})

	t.Run("should default a nil schema to an open object", func(t *testing.T) {
		p := weatherPlugin()
		p.Parameters = nil

		r, err := NewRegistry(nil, p)
		require.NoError(t, err)
		assert.Equal(t, "object", r.Catalog()[0].Parameters["type"])
		assert.NoError(t, r.Validate("get_weather", nil))
	})
}

func TestRegistryValidate(t *testing.T) {
	r, err := NewRegistry(tools.Builtins(), weatherPlugin())
	require.NoError(t, err)

	assert.NoError(t, r.Validate("get_weather", map[string]any{"city": "Jakarta"}))
	assert.ErrorContains(t, r.Validate("get_weather", map[string]any{}), "city")
	assert.NoError(t, r.Validate(tools.AddToCart, map[string]any{"productId": "prod_kb", "quantity": float64(2)}))
	assert.Error(t, r.Validate(tools.AddToCart, map[string]any{"productId": "prod_kb", "quantity": float64(0)}))
	assert.Error(t, r.Validate("nope", nil))
}

func TestAsyncHandler(t *testing.T) {
	p := Plugin{
		Name: "slow_quote",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			done := make(chan string, 1)
			go func() {
				time.Sleep(5 * time.Millisecond)
				done <- "quoted"
			}()
			select {
			case v := <-done:
				return v, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}

	r, err := NewRegistry(nil, p)
	require.NoError(t, err)

	got, ok := r.Lookup("slow_quote")
	require.True(t, ok)
	out, err := got.Handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "quoted", out)
}

func TestCatalogIsACopy(t *testing.T) {
	r, err := NewRegistry(tools.Builtins())
	require.NoError(t, err)

	c := r.Catalog()
	c[0].Name = "mutated"

	assert.Equal(t, tools.DiscoverMerchant, r.Catalog()[0].Name)
}
