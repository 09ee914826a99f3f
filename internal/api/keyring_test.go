package api

import (
	"testing"

	"beautycity/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestKeyringVerify(t *testing.T) {
	k := newKeyring(&config.APIConfig{Auth: config.APIAuthConfig{
		HeaderAPIKey: " X-Site-Key ",
		APIKeys: []config.APIClientKey{
			{Key: "widget", Extra: "w-secret", Permissions: []string{permReadSlots, permWriteAppointments}},
			{Key: "owner", Extra: "o-secret"},
		},
	}})

	assert.Equal(t, "x-site-key", k.apiKeyHeader)
	assert.Equal(t, apiExtraHeaderDefault, k.extraHeader)

	cases := []struct {
		name     string
		key      string
		extra    string
		required string
		want     error
	}{
		{"Granted", "widget", "w-secret", permReadSlots, nil},
		{"TrimmedValues", " widget ", "w-secret ", permWriteAppointments, nil},
		{"AllowAllClient", "owner", "o-secret", permExport, nil},
		{"MissingExtra", "widget", "", permReadSlots, errMissingKey},
		{"UnknownKey", "nobody", "w-secret", permReadSlots, errInvalidKey},
		{"WrongExtra", "widget", "o-secret", permReadSlots, errInvalidExtra},
		{"NoPermission", "widget", "w-secret", permExport, errPermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, k.verify(tc.key, tc.extra, tc.required))
		})
	}
}
