package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/grepbag/errors"
	"github.com/c360/grepbag/types"
)

func TestSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  types.SourceConfig
		wantErr bool
	}{
		{
			name:   "valid bagfile source",
			config: types.SourceConfig{Kind: "bagfile", Options: map[string]any{"path": "run.jsonl"}},
		},
		{
			name:   "options may be empty",
			config: types.SourceConfig{Kind: "nats"},
		},
		{
			name:    "missing kind",
			config:  types.SourceConfig{Options: map[string]any{"path": "run.jsonl"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSinkConfig_Validate(t *testing.T) {
	assert.NoError(t, types.SinkConfig{Kind: "console"}.Validate())

	err := types.SinkConfig{Options: map[string]any{"color": true}}.Validate()
	assert.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "bagfile", types.SourceConfig{Kind: "bagfile"}.InstanceName())
	assert.Equal(t, "front", types.SourceConfig{Kind: "bagfile", Name: "front"}.InstanceName())
	assert.Equal(t, "csv", types.SinkConfig{Kind: "csv"}.InstanceName())
	assert.Equal(t, "report", types.SinkConfig{Kind: "csv", Name: "report"}.InstanceName())
}

func TestParseSubtypeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: types.SubtypeModeArray},
		{in: "array", want: types.SubtypeModeArray},
		{in: "all", want: types.SubtypeModeAll},
		{in: "nested", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.in, func(t *testing.T) {
			got, err := types.ParseSubtypeMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComponentType_String(t *testing.T) {
	assert.Equal(t, "source", types.ComponentTypeSource.String())
	assert.Equal(t, "sink", types.ComponentTypeSink.String())
}
