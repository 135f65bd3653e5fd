package zpt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

func validRequest() Request {
	return Request{
		Query: "what did Hinton win",
		Zoom:  ZoomUnit,
		Tilt:  TiltKeywords,
	}
}

func TestValidateDefaults(t *testing.T) {
	req := validRequest()
	require.NoError(t, req.Validate())
	assert.Equal(t, defaultMaxTokens, req.Transform.MaxTokens)
	assert.Equal(t, FormatStructured, req.Transform.Format)
	assert.Equal(t, ChunkTokenAware, req.Transform.ChunkStrategy)
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		detail string
	}{
		{"zoom", func(r *Request) { r.Zoom = "zoomable" }, "INVALID_ZOOM"},
		{"tilt", func(r *Request) { r.Tilt = "sideways" }, "INVALID_TILT"},
		{"pan domains", func(r *Request) { r.Pan.Domains = make([]string, 6) }, "INVALID_PAN"},
		{"pan keywords", func(r *Request) { r.Pan.Keywords = make([]string, 11) }, "INVALID_PAN"},
		{"pan entities", func(r *Request) { r.Pan.Entities = make([]string, 9) }, "INVALID_PAN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))

			var fe *fault.Error
			require.ErrorAs(t, err, &fe)
			assert.False(t, fe.Retriable)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, fe.Details["code"])
			}
		})
	}
}

func TestValidateTokenBounds(t *testing.T) {
	req := validRequest()
	req.Transform.MaxTokens = 128
	assert.Error(t, req.Validate())

	req = validRequest()
	req.Transform.MaxTokens = 20000
	assert.Error(t, req.Validate())

	req = validRequest()
	req.Transform.MaxTokens = 256
	assert.NoError(t, req.Validate())

	req = validRequest()
	req.Transform.MaxTokens = 16384
	assert.NoError(t, req.Validate())
}

func TestValidateQueryRequirement(t *testing.T) {
	// Micro and text browse without a query.
	for _, zoom := range []Zoom{ZoomMicro, ZoomText} {
		req := Request{Zoom: zoom, Tilt: TiltTemporal}
		assert.NoError(t, req.Validate(), "zoom %s", zoom)
	}
	for _, zoom := range []Zoom{ZoomEntity, ZoomUnit, ZoomCommunity, ZoomCorpus} {
		req := Request{Zoom: zoom, Tilt: TiltTemporal}
		assert.Error(t, req.Validate(), "zoom %s", zoom)
	}
}

func TestValidateTemporalRange(t *testing.T) {
	req := validRequest()
	req.Pan.Temporal = &TimeRange{}
	require.NoError(t, req.Validate())

	req = validRequest()
	req.Pan.Temporal = &TimeRange{
		Start: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	err := req.Validate()
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidInput, fault.CodeOf(err))
}

func TestZoomTables(t *testing.T) {
	assert.Equal(t, []graph.Kind{graph.KindTextElement}, ZoomMicro.Kinds())
	assert.Equal(t, 5, ZoomMicro.Cap())
	assert.Equal(t, 25, ZoomEntity.Cap())
	assert.Equal(t, 15, ZoomText.Cap())
	assert.Equal(t, 25, ZoomUnit.Cap())
	assert.Equal(t, 20, ZoomCommunity.Cap())
	assert.Equal(t, 10, ZoomCorpus.Cap())

	assert.True(t, ZoomEntity.expands())
	assert.True(t, ZoomCommunity.overviewOnly())
}

func TestWeightTableRowsBounded(t *testing.T) {
	for zoom, w := range weightTable {
		sum := w.embed + w.keyword + w.graph + w.temporal
		assert.LessOrEqual(t, sum, 3.0, "zoom %s", zoom)
	}
}
