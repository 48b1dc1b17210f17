package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	stamp := time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"on-network-communicating", "on-network-communicating"},
		{true, "true"},
		{uint64(2), "2"},
		{stamp, "2024-03-04T10:30:00Z"},
		{[]interface{}{"AAAA-1111", "BBBB-2222"}, "AAAA-1111\nBBBB-2222"},
		{map[string]interface{}{"type": "Wi-Fi", "interface": "en0"}, "{interface=en0, type=Wi-Fi}"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatValue(c.in))
	}
}

func TestPrintConditions(t *testing.T) {
	var buf bytes.Buffer
	printConditions(&buf, map[string]interface{}{
		"has_wi_fi":     true,
		"ad_on_network": false,
	})
	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "VALUE")
	assert.Contains(t, out, "has_wi_fi")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("ad_on_network")), bytes.Index(buf.Bytes(), []byte("has_wi_fi")))

	buf.Reset()
	printConditions(&buf, nil)
	assert.Equal(t, "No conditions found.\n", buf.String())
}
