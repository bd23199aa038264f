package provider

import (
	"context"
	"errors"
	"testing"

	"equisense/pkg/config"
	xerr "equisense/pkg/error"
	"equisense/pkg/provider/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name     string
	priority int
	closeErr error
	closed   bool
}

func (s *stubSource) Name() string       { return s.name }
func (s *stubSource) Priority() int      { return s.priority }
func (s *stubSource) IsConfigured() bool { return true }
func (s *stubSource) FetchCompanyData(ctx context.Context, key string) core.DataSourceResult {
	return core.NewSuccess(s.name, core.Payload{"price": 1.0}, 1, []string{"price"})
}
func (s *stubSource) Validate(p core.Payload) (bool, float64, []string) { return true, 1, p.Fields() }
func (s *stubSource) Close() error {
	s.closed = true
	return s.closeErr
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubSource{name: "a", priority: 1}))

	err := reg.Register(&stubSource{name: "a", priority: 2})
	assert.Error(t, err, "重复名称应返回错误")
	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(&stubSource{}))

	s, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Priority())

	_, err = reg.Get("missing")
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestRegistry_ListOrderedByPriority(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubSource{name: "sina", priority: 3}))
	require.NoError(t, reg.Register(&stubSource{name: "tencent", priority: 2}))
	require.NoError(t, reg.Register(&stubSource{name: "quoteapi", priority: 1}))
	require.NoError(t, reg.Register(&stubSource{name: "backup", priority: 2}))

	assert.Equal(t, []string{"quoteapi", "backup", "tencent", "sina"}, reg.Names())
	assert.Equal(t, 3, reg.Priorities()["sina"])
}

func TestRegistry_CloseJoinsErrors(t *testing.T) {
	reg := NewRegistry()
	ok := &stubSource{name: "ok"}
	bad := &stubSource{name: "bad", closeErr: errors.New("boom")}
	require.NoError(t, reg.Register(ok))
	require.NoError(t, reg.Register(bad))

	err := reg.Close()
	assert.ErrorContains(t, err, "bad")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func TestBuildRegistry_FromDefaultConfig(t *testing.T) {
	t.Setenv("EQUISENSE_QUOTEAPI_KEY", "")
	cfg := config.Default()
	cfg.Sources[2].Enabled = false

	reg, err := BuildRegistry(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"quoteapi", "tencent"}, reg.Names())

	quote, err := reg.Get("quoteapi")
	require.NoError(t, err)
	assert.False(t, quote.IsConfigured(), "未设置 API Key 时应视为未配置")

	status := reg.Status()
	assert.Contains(t, status, "tencent")
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.SourceConfig{Name: "x", Type: "bloomberg"}, nil)
	assert.Equal(t, xerr.CodeConfigInvalid, xerr.CodeOf(err))
}
