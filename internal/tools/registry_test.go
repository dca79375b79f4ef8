package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string, cat ToolCategory, prio int) *Tool {
	return &Tool{
		Name:     name,
		Category: cat,
		Priority: prio,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			v, _ := StringArg(args, "id")
			return name + ":" + v, nil
		},
		Schema: ToolSchema{
			Required: []string{"id"},
			Properties: map[string]Property{
				"id": {Type: "string", Description: "identifier"},
			},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NotNil(t, reg)
	assert.Equal(t, 0, reg.Count())
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("lookup", CategoryLogs, 0)))

	got := reg.Get("lookup")
	require.NotNil(t, got)
	assert.Equal(t, 50, got.Priority, "default priority")
	assert.True(t, reg.Has("lookup"))
	assert.False(t, reg.Has("nope"))
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("dupe", CategoryGeneral, 0)))
	err := reg.Register(echoTool("dupe", CategoryGeneral, 0))
	assert.True(t, errors.Is(err, ErrToolAlreadyRegistered))
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&Tool{Execute: func(context.Context, map[string]any) (string, error) { return "", nil }})
	assert.True(t, errors.Is(err, ErrToolNameEmpty))

	err = reg.Register(&Tool{Name: "noexec"})
	assert.True(t, errors.Is(err, ErrToolExecuteNil))

	assert.Panics(t, func() { reg.MustRegister(&Tool{Name: "noexec"}) })
}

func TestGetByCategory(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("low", CategoryLogs, 10))
	reg.MustRegister(echoTool("high", CategoryLogs, 90))
	reg.MustRegister(echoTool("manual", CategoryManual, 0))

	logs := reg.GetByCategory(CategoryLogs)
	require.Len(t, logs, 2)
	assert.Equal(t, "high", logs[0].Name)
	assert.Equal(t, []string{"high", "low", "manual"}, reg.Names())
}

func TestExecute(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("lookup", CategoryLogs, 0))

	res, err := reg.Execute(context.Background(), "lookup", map[string]any{"id": float64(42)})
	require.NoError(t, err)
	assert.True(t, res.IsSuccess())
	assert.Equal(t, "lookup:42", res.Result)

	_, err = reg.Execute(context.Background(), "lookup", map[string]any{})
	assert.True(t, errors.Is(err, ErrMissingRequiredArg))

	_, err = reg.Execute(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestDefinitions(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("b_tool", CategoryLogs, 0))
	reg.MustRegister(echoTool("a_tool", CategoryManual, 0))

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a_tool", defs[0].Name)
	assert.Equal(t, "object", defs[0].InputSchema["type"])
	assert.Equal(t, []string{"id"}, defs[0].InputSchema["required"])
	props := defs[0].InputSchema["properties"].(map[string]interface{})
	assert.Contains(t, props, "id")
}

func TestDefinitions_OrderedByCategoryAndPriority(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(echoTool("chat_summary", CategoryLogs, 40))
	reg.MustRegister(echoTool("event_lookup", CategoryLogs, 90))
	reg.MustRegister(echoTool("zz_misc", ToolCategory("/other"), 0))
	reg.MustRegister(echoTool("clock", CategoryGeneral, 0))
	reg.MustRegister(echoTool("manual_search", CategoryManual, 10))

	var names []string
	for _, d := range reg.Definitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"manual_search", "event_lookup", "chat_summary", "clock", "zz_misc"}, names)
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"s": "x", "f": float64(7), "frac": 1.5, "i": 3, "b": true}

	v, err := StringArg(args, "s")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	v, err = StringArg(args, "f")
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	v, err = StringArg(args, "i")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	v, err = StringArg(args, "absent")
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = StringArg(args, "b")
	assert.True(t, errors.Is(err, ErrInvalidArgType))

	_, err = StringArg(args, "frac")
	assert.True(t, errors.Is(err, ErrInvalidArgType))
}
