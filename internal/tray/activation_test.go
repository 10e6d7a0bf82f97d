package tray

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationMode_Matches(t *testing.T) {
	all := []MouseEvent{MouseMove, LeftMouseDown, LeftMouseUp, RightMouseDown, RightMouseUp,
		MiddleMouseDown, MiddleMouseUp, DoubleClick, BalloonClicked}

	tests := []struct {
		mode ActivationMode
		want []MouseEvent
	}{
		{ActivateLeftClick, []MouseEvent{LeftMouseUp}},
		{ActivateRightClick, []MouseEvent{RightMouseUp}},
		{ActivateLeftOrRightClick, []MouseEvent{LeftMouseUp, RightMouseUp}},
		{ActivateLeftOrDoubleClick, []MouseEvent{LeftMouseUp, DoubleClick}},
		{ActivateDoubleClick, []MouseEvent{DoubleClick}},
		{ActivateMiddleClick, []MouseEvent{MiddleMouseUp}},
		{ActivateAll, all[1:]},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			for _, me := range all {
				assert.Equal(t, contains(tt.want, me), tt.mode.Matches(me), "mouse event %s", me)
			}
		})
	}
}

func contains(list []MouseEvent, me MouseEvent) bool {
	for _, m := range list {
		if m == me {
			return true
		}
	}
	return false
}

func TestParseActivationMode(t *testing.T) {
	tests := []struct {
		in   string
		want ActivationMode
	}{
		{"left_click", ActivateLeftClick},
		{"Right-Click", ActivateRightClick},
		{" double_click ", ActivateDoubleClick},
		{"LEFT_OR_DOUBLE_CLICK", ActivateLeftOrDoubleClick},
		{"all", ActivateAll},
	}
	for _, tt := range tests {
		got, err := ParseActivationMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseActivationMode("triple_click")
	assert.Error(t, err)
}

func TestExecuteIfEnabled(t *testing.T) {
	var got []any
	cmd := CommandFunc(func(p, target any) { got = append(got, p, target) })

	assert.True(t, ExecuteIfEnabled(cmd, 1, "target"))
	assert.Equal(t, []any{1, "target"}, got)

	assert.False(t, ExecuteIfEnabled(nil, 1, nil))
	assert.False(t, ExecuteIfEnabled(&countingCommand{enabled: false}, nil, nil))
}

func TestEventHub_HandledOnlyForPreview(t *testing.T) {
	h := newEventHub()
	h.on(EventOpened, func(e *Event) { e.Handled = true })
	h.on(EventPreviewOpen, func(e *Event) { e.Handled = true })

	assert.False(t, h.raise(&Event{Type: EventOpened}).Handled)
	assert.True(t, h.raise(&Event{Type: EventPreviewOpen}).Handled)
	assert.False(t, h.raise(&Event{Type: EventClosed}).Handled)
}
