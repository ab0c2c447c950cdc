package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Via Roma 10", "via roma 10"},
		{"abbreviated via", "V. Roma, 10", "via roma 10"},
		{"dotted piazza", "P.zza Duomo 1", "piazza duomo 1"},
		{"undotted piazza", "pzza duomo 1", "piazza duomo 1"},
		{"viale", "V.le Monza 5", "viale monza 5"},
		{"corso accents", "C.so Cantù 3", "corso cantu 3"},
		{"english street type", "221B Baker St.", "221b baker street"},
		{"extra whitespace", "  Via   Roma   10 ", "via roma 10"},
		{"apostrophe", "Via Sant'Ambrogio 4", "via sant ambrogio 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.input))
		})
	}
}

func TestAddressKey(t *testing.T) {
	tests := []struct {
		name    string
		address string
		city    string
		want    string
	}{
		{"strips trailing city", "Via Roma 10, Milano", "Milano", "via roma 10"},
		{"no city in address", "Via Roma 10", "Milano", "via roma 10"},
		{"strips postcode and city", "Via Roma 10, 20121 Milano, Italia", "Milano", "via roma 10"},
		{"multi token city", "Via Po 2, Reggio Emilia", "Reggio Emilia", "via po 2"},
		{"city is also the street", "Via Milano", "Milano", "via milano"},
		{"accented city", "Via Dante 1, Cantù", "Cantu", "via dante 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddressKey(tt.address, tt.city))
		})
	}
}

func TestNormalizeCity(t *testing.T) {
	assert.Equal(t, "milano", NormalizeCity(" MILANO "))
	assert.Equal(t, "forli", NormalizeCity("Forlì"))
	assert.Equal(t, "reggio emilia", NormalizeCity("Reggio-Emilia"))
}

func TestNormalizeAgency(t *testing.T) {
	assert.Equal(t, "rossi immobiliare", NormalizeAgency("Rossi Immobiliare S.r.l."))
	assert.Equal(t, "rossi immobiliare", NormalizeAgency("ROSSI IMMOBILIARE"))
	assert.Equal(t, "bianchi case", NormalizeAgency("Bianchi Case"))
	assert.Equal(t, "srl", NormalizeAgency("SRL"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "0212345678", NormalizePhone("+39 02 1234 5678"))
	assert.Equal(t, "3331234567", NormalizePhone("0039 333-123-4567"))
	assert.Equal(t, "3331234567", NormalizePhone("333 123 4567"))
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "via roma", ApplyChain("  VIA ROMA ", "trim", "lowercase"))
	assert.Equal(t, "x", Apply("x", "does-not-exist"))

	fn, ok := Get("naddress")
	assert.True(t, ok)
	assert.Equal(t, "via roma 1", fn("V. Roma 1"))
}
