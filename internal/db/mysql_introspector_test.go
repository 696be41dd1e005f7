package db

import (
	"reflect"
	"testing"
)

func TestParseEnumValues(t *testing.T) {
	tests := []struct {
		name       string
		columnType string
		want       []string
		wantErr    bool
	}{
		{"simple", "enum('a','b','c')", []string{"a", "b", "c"}, false},
		{"escaped quote", "enum('it''s','no')", []string{"it's", "no"}, false},
		{"not an enum", "varchar(255)", nil, false},
		{"broken", "enum(", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEnumValues(tt.columnType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEnumValues(%q) error = %v, wantErr %v", tt.columnType, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseEnumValues(%q) = %v, want %v", tt.columnType, got, tt.want)
			}
		})
	}
}

func TestNormalizePostgresType(t *testing.T) {
	length := 64
	tests := []struct {
		dataType string
		udtName  string
		maxLen   *int
		want     string
	}{
		{"timestamp with time zone", "timestamptz", nil, "timestamptz"},
		{"character varying", "varchar", &length, "varchar(64)"},
		{"character varying", "varchar", nil, "varchar"},
		{"ARRAY", "_int4", nil, "integer[]"},
		{"USER-DEFINED", "person_status_enum", nil, "person_status_enum"},
		{"double precision", "float8", nil, "double precision"},
	}

	for _, tt := range tests {
		t.Run(tt.dataType+"/"+tt.udtName, func(t *testing.T) {
			if got := normalizePostgresType(tt.dataType, tt.udtName, tt.maxLen); got != tt.want {
				t.Errorf("normalizePostgresType() = %q, want %q", got, tt.want)
			}
		})
	}
}
