package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginationBounds(t *testing.T) {
	p := ParsePagination("2", "10", 25)
	require.Equal(t, 3, p.TotalPages)
	start, end := p.Bounds()
	require.Equal(t, 10, start)
	require.Equal(t, 20, end)

	p = ParsePagination("9", "10", 25)
	start, end = p.Bounds()
	require.Equal(t, 25, start)
	require.Equal(t, 25, end)

	p = ParsePagination("x", "", 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	start, end = p.Bounds()
	require.Zero(t, start)
	require.Zero(t, end)
}

func TestPaginationBoundsOversizedPage(t *testing.T) {
	p := ParsePagination("9223372036854775807", "20", 3)
	start, end := p.Bounds()
	require.Equal(t, 3, start)
	require.Equal(t, 3, end)

	p = ParsePagination("4611686018427387904", "200", 1000)
	start, end = p.Bounds()
	require.Equal(t, 1000, start)
	require.Equal(t, 1000, end)

	start, end = Pagination{}.Bounds()
	require.Zero(t, start)
	require.Zero(t, end)
}
