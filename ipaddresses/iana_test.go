package ipaddresses

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSpecialPurposeAddress(t *testing.T) {
	assert := assert.New(t)

	ipAddr := "132.239.180.101"
	special, err := IsSpecialPurposeAddress(ipAddr)
	assert.False(special)
	assert.Nil(err)

	ipAddr = "192.168.0.1"
	special, err = IsSpecialPurposeAddress(ipAddr)
	assert.True(special)
	assert.Nil(err)
}

func TestIsSpecialPurposeAddressIPv6(t *testing.T) {
	assert := assert.New(t)

	for _, ipAddr := range []string{"::1", "fe80::1", "fd12:3456::1", "2001:db8::42"} {
		special, err := IsSpecialPurposeAddress(ipAddr)
		assert.True(special, ipAddr)
		assert.Nil(err)
	}

	special, err := IsSpecialPurposeAddress("2a00:1450:4001:81c::200e")
	assert.False(special)
	assert.Nil(err)
}

func TestIsSpecialPurposeAddressInvalid(t *testing.T) {
	assert := assert.New(t)

	_, err := IsSpecialPurposeAddress("not-an-ip")
	assert.Error(err)
}
