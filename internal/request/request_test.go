package request

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDecodeOrder(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Order
		wantErr error
	}{
		{
			name: "minimal",
			raw:  "<PARAMETERS><ID>5</ID></PARAMETERS>",
			want: Order{ServiceID: 5, Quantity: 1},
		},
		{
			name: "imei and quantity",
			raw:  "<PARAMETERS><ID>5</ID><QNT>3</QNT><IMEI>356938035643809</IMEI></PARAMETERS>",
			want: Order{ServiceID: 5, Quantity: 3, Primary: "356938035643809"},
		},
		{
			name: "non positive quantity defaults to one",
			raw:  "<PARAMETERS><ID>5</ID><QNT>-2</QNT></PARAMETERS>",
			want: Order{ServiceID: 5, Quantity: 1},
		},
		{
			name: "non numeric quantity defaults to one",
			raw:  "<PARAMETERS><ID>5</ID><QNT>lots</QNT></PARAMETERS>",
			want: Order{ServiceID: 5, Quantity: 1},
		},
		{
			name:    "missing id element",
			raw:     "<PARAMETERS><QNT>1</QNT></PARAMETERS>",
			wantErr: ErrMalformed,
		},
		{
			name:    "not xml",
			raw:     "{\"ID\":5}",
			wantErr: ErrMalformed,
		},
		{
			name:    "custom field outside base64 alphabet",
			raw:     "<PARAMETERS><ID>5</ID><CUSTOMFIELD>not-base64!!</CUSTOMFIELD></PARAMETERS>",
			wantErr: ErrInvalidEncoding,
		},
		{
			name:    "custom field decodes to non json",
			raw:     "<PARAMETERS><ID>5</ID><CUSTOMFIELD>" + b64("hello world") + "</CUSTOMFIELD></PARAMETERS>",
			wantErr: ErrInvalidJSON,
		},
		{
			name:    "custom field decodes to json array",
			raw:     "<PARAMETERS><ID>5</ID><CUSTOMFIELD>" + b64(`["a","b"]`) + "</CUSTOMFIELD></PARAMETERS>",
			wantErr: ErrInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOrder(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want.ServiceID, got.ServiceID)
			require.Equal(t, tt.want.Quantity, got.Quantity)
			require.Equal(t, tt.want.Primary, got.Primary)
		})
	}
}

func TestDecodeOrderCustomFieldsKeepOrder(t *testing.T) {
	blob := b64(`{"zeta":"1","alpha":"2","mid":"3"}`)
	got, err := DecodeOrder("<PARAMETERS><ID>5</ID><CUSTOMFIELD>" + blob + "</CUSTOMFIELD></PARAMETERS>")
	require.NoError(t, err)

	require.Equal(t, 3, got.Fields.Len())
	first, ok := got.Fields.First()
	require.True(t, ok)
	require.Equal(t, Field{Name: "zeta", Value: "1"}, first)

	names := make([]string, 0, 3)
	for _, f := range got.Fields.Fields() {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestDecodeOrderAbsentBlobYieldsEmptyMap(t *testing.T) {
	got, err := DecodeOrder("<PARAMETERS><ID>5</ID></PARAMETERS>")
	require.NoError(t, err)
	require.Equal(t, 0, got.Fields.Len())
	_, ok := got.Fields.First()
	require.False(t, ok)
}

func TestDecodeOrderScalarValues(t *testing.T) {
	blob := b64(`{"pin":1234,"note":null,"model":"X200"}`)
	got, err := DecodeOrder("<PARAMETERS><ID>5</ID><CUSTOMFIELD>" + blob + "</CUSTOMFIELD></PARAMETERS>")
	require.NoError(t, err)

	pin, ok := got.Fields.Get("pin")
	require.True(t, ok)
	require.Equal(t, "1234", pin)

	note, ok := got.Fields.Get("note")
	require.True(t, ok)
	require.Equal(t, "", note)

	model, ok := got.Fields.Get("model")
	require.True(t, ok)
	require.Equal(t, "X200", model)
}

func TestDecodeOrderBase64RoundTrip(t *testing.T) {
	// Alphabet-only but not a canonical encoding: decoding and
	// re-encoding does not reproduce the input.
	_, err := DecodeOrder("<PARAMETERS><ID>5</ID><CUSTOMFIELD>AAA</CUSTOMFIELD></PARAMETERS>")
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDecodeStatus(t *testing.T) {
	id, err := DecodeStatus("<PARAMETERS><ID>42</ID></PARAMETERS>")
	require.NoError(t, err)
	require.Equal(t, "42", id)

	ids, err := DecodeStatus("<PARAMETERS><ID>1,2,999</ID></PARAMETERS>")
	require.NoError(t, err)
	require.Equal(t, "1,2,999", ids)

	_, err = DecodeStatus("<PARAMETERS></PARAMETERS>")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeStatus("garbage")
	require.ErrorIs(t, err, ErrMalformed)
}
