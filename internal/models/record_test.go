package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr error
	}{
		{name: "string id", data: `{"id":"42","fullName":"Ana"}`, want: "42"},
		{name: "numeric id", data: `{"id":42}`, want: "42"},
		{name: "uuid id", data: `{"id":"0f8fad5b-d9cb-469f-a165-70867728950e"}`, want: "0f8fad5b-d9cb-469f-a165-70867728950e"},
		{name: "missing id", data: `{"fullName":"Ana"}`, wantErr: ErrMissingID},
		{name: "null id", data: `{"id":null}`, wantErr: ErrMissingID},
		{name: "empty id", data: `{"id":""}`, wantErr: ErrMissingID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractID([]byte(tt.data))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractID_NotAnObject(t *testing.T) {
	_, err := ExtractID([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestNewRecord(t *testing.T) {
	rec, err := NewRecord(TablePilots, []byte(`{"id":"42","fullName":"Ana"}`))
	require.NoError(t, err)

	assert.Equal(t, TablePilots, rec.Table)
	assert.Equal(t, "42", rec.ID)
	assert.JSONEq(t, `{"id":"42","fullName":"Ana"}`, string(rec.Data))
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestRecord_Clone(t *testing.T) {
	original, err := NewRecord(TablePilots, []byte(`{"id":"1","fullName":"Ana"}`))
	require.NoError(t, err)

	clone := original.Clone()
	assert.Equal(t, original, clone)

	clone.Data[2] = 'X'
	assert.NotEqual(t, original.Data, clone.Data, "clone must not share the data buffer")
}

func TestRecord_Fields(t *testing.T) {
	rec := &Record{Table: TablePilots, ID: "1", Data: json.RawMessage(`{"id":"1","active":true}`)}

	fields, err := rec.Fields()
	require.NoError(t, err)
	assert.Equal(t, "1", fields["id"])
	assert.Equal(t, true, fields["active"])

	empty := &Record{Table: TablePilots, ID: "2"}
	fields, err = empty.Fields()
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestDecode(t *testing.T) {
	rec := &Record{
		Table: TablePilots,
		ID:    "42",
		Data:  json.RawMessage(`{"id":"42","fullName":"Ana","number":7,"active":true}`),
	}

	pilot, err := Decode[Pilot](rec)
	require.NoError(t, err)
	assert.Equal(t, "Ana", pilot.FullName)
	assert.Equal(t, 7, pilot.Number)
	assert.True(t, pilot.Active)

	_, err = Decode[Pilot](nil)
	assert.Error(t, err)

	_, err = Decode[Pilot](&Record{Table: TablePilots, ID: "x", Data: json.RawMessage(`not json`)})
	assert.Error(t, err)
}
