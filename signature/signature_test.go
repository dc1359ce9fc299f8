package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHas(t *testing.T) {
	assert := assert.New(t)

	assert.True(Has("id=1+union+select+2", "union+select"))
	assert.False(Has("id=1+UNION+select+2", "union+select"))
	assert.False(Has("", "a"))
	assert.False(Has("abc", ""))
}

func TestMatchesAny(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	needles := []string{"sqlmap", "Nikto", "w3af"}

	// Act & Assert
	assert.True(MatchesAny("sqlmap/1.7.2#stable", needles))
	assert.True(MatchesAny("Mozilla/5.00 (Nikto/2.1.6)", needles))
	assert.False(MatchesAny("Mozilla/5.0 (X11; Linux x86_64)", needles))
	assert.False(MatchesAny("nikto", needles))
	assert.False(MatchesAny("anything", nil))
}

func TestStartsWithAny(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	prefixes := []string{"MSIE", "user", "<?"}

	// Act & Assert
	assert.True(StartsWithAny("msie 6.0; Windows", prefixes))
	assert.True(StartsWithAny("User-Agent: foo", prefixes))
	assert.True(StartsWithAny("<?php echo 1; ?>", prefixes))
	assert.False(StartsWithAny("Mozilla/5.0 (MSIE)", prefixes))
	assert.False(StartsWithAny("us", prefixes))
	assert.False(StartsWithAny("anything", []string{""}))
}

func TestCountFold(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(2, CountFold("Windows NT 10.0; windows", "WINDOWS"))
	assert.Equal(1, CountFold("AppleWebKit/537.36", "apple"))
	assert.Equal(0, CountFold("Gecko", ""))
	assert.Equal(2, CountFold("aaaa", "aa"))
	assert.True(ContainsFold("Connection: TE", "te"))
	assert.False(ContainsFold("", "te"))
}

func TestLinearMatcher(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	m := NewLinearMatcher([]string{"../", "", "union+select"})

	// Act & Assert
	assert.Equal(2, m.Len())
	assert.True(m.Match("file=../../etc/passwd"))
	assert.True(m.Match("q=1+union+select+null"))
	assert.False(m.Match("q=hello"))
	assert.False(m.Match(""))
}

func TestNewMatcher(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	m := NewMatcher([]string{"%27--", "w00tw00t", `..\`})

	// Act & Assert
	assert.Equal(3, m.Len())
	assert.True(m.Match("a=%27--"))
	assert.True(m.Match("/w00tw00t.at.ISC.SANS.DFind:)"))
	assert.True(m.Match(`f=..\..\boot.ini`))
	assert.False(m.Match("a=b&c=d"))
}
