package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockResolver[T any] struct {
	value T
	err   error
	calls int
}

func (m *mockResolver[T]) Resolve(ctx context.Context) (T, error) {
	m.calls++
	return m.value, m.err
}

func TestConfigValue_IsSet(t *testing.T) {
	var cv ConfigValue[bool]
	assert.False(t, cv.IsSet())
	assert.True(t, NewConfigValue(false).IsSet())
}

func TestConfigValue_Get(t *testing.T) {
	var cv ConfigValue[int]
	v, ok := cv.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, v)

	v, ok = NewConfigValue(7).Get()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestConfigValue_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit value wins", func(t *testing.T) {
		r := &mockResolver[bool]{value: false}
		assert.True(t, NewConfigValue(true).Resolve(ctx, r, false))
		assert.Equal(t, 0, r.calls)
	})

	t.Run("resolver used when unset", func(t *testing.T) {
		r := &mockResolver[int]{value: 42}
		assert.Equal(t, 42, ConfigValue[int]{}.Resolve(ctx, r, 1))
		assert.Equal(t, 1, r.calls)
	})

	t.Run("resolver error falls back to default", func(t *testing.T) {
		r := &mockResolver[string]{value: "ignored", err: errors.New("boom")}
		assert.Equal(t, "default", ConfigValue[string]{}.Resolve(ctx, r, "default"))
	})

	t.Run("nil resolver falls back to default", func(t *testing.T) {
		assert.Equal(t, 3, ConfigValue[int]{}.Resolve(ctx, nil, 3))
	})
}

func TestParseConfigValues(t *testing.T) {
	params := map[string]string{
		"yes":      "true",
		"one":      "1",
		"no":       "false",
		"count":    "12",
		"badCount": "twelve",
		"interval": "2s",
		"badDur":   "2 seconds",
		"empty":    "",
	}

	v, ok := ParseBoolConfigValue(params, "yes").Get()
	assert.True(t, ok)
	assert.True(t, v)
	v, _ = ParseBoolConfigValue(params, "one").Get()
	assert.True(t, v)
	v, ok = ParseBoolConfigValue(params, "no").Get()
	assert.True(t, ok)
	assert.False(t, v)
	assert.False(t, ParseBoolConfigValue(params, "missing").IsSet())

	i, ok := ParseIntConfigValue(params, "count").Get()
	assert.True(t, ok)
	assert.Equal(t, 12, i)
	assert.False(t, ParseIntConfigValue(params, "badCount").IsSet())

	d, ok := ParseDurationConfigValue(params, "interval").Get()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
	assert.False(t, ParseDurationConfigValue(params, "badDur").IsSet())

	assert.False(t, ParseStringConfigValue(params, "empty").IsSet())
	assert.False(t, ParseStringConfigValue(params, "missing").IsSet())
}
