package parallel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_PreservesInputOrder(t *testing.T) {
	in := []int{5, 1, 4, 2, 3}

	out, err := Map(context.Background(), in, func(ctx context.Context, v int) (int, error) {
		// Later elements finish first.
		time.Sleep(time.Duration(10-v) * time.Millisecond)
		return v * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 10, 40, 20, 30}, out)
}

func TestMap_Empty(t *testing.T) {
	called := false
	out, err := Map(context.Background(), []string{}, func(context.Context, string) (int, error) {
		called = true
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.False(t, called)
}

func TestMap_FirstFailureCancelsSiblings(t *testing.T) {
	boom := errors.New("boom")

	out, err := Map(context.Background(), []int{0, 1, 2}, func(ctx context.Context, v int) (int, error) {
		if v == 0 {
			return 0, boom
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return v, nil
		}
	})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

func TestFlatMap_Concatenates(t *testing.T) {
	out, err := FlatMap(context.Background(), []int{1, 2, 3}, func(ctx context.Context, v int) ([]int, error) {
		res := make([]int, v)
		for i := range res {
			res[i] = v
		}
		return res, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 3, 3, 3}, out)
}

func TestEach(t *testing.T) {
	err := Each(context.Background(), []string{"a", "b"}, func(ctx context.Context, s string) error {
		if s == "b" {
			return errors.New("bad b")
		}
		return nil
	})
	require.EqualError(t, err, "bad b")
}
