package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine_ReadyLineDetected(t *testing.T) {
	_, kind, _ := parseLine(`[12:00:00] [Server thread/INFO]: Done (5.123s)! For help, type "help"`)
	assert.Equal(t, lineKindReady, kind)
}

func TestParseLine_RconReadyLineDetected(t *testing.T) {
	_, kind, _ := parseLine(`[12:00:00] [RCON Listener #1/INFO]: RCON running on 0.0.0.0:25575`)
	assert.Equal(t, lineKindReady, kind)
}

func TestParseLine_JoinLineExtractsUsername(t *testing.T) {
	clean, kind, user := parseLine(`[12:00:00] [Server thread/INFO]: Notch joined the game`)
	assert.Equal(t, lineKindJoin, kind)
	assert.Equal(t, "Notch", user)
	assert.NotContains(t, clean, "\x1b")
}

func TestParseLine_LeaveLineExtractsUsername(t *testing.T) {
	_, kind, user := parseLine(`[12:00:00] [Server thread/INFO]: Notch left the game`)
	assert.Equal(t, lineKindLeave, kind)
	assert.Equal(t, "Notch", user)
}

func TestParseLine_ProxyConnectedLineExtractsUsername(t *testing.T) {
	_, kind, user := parseLine(`[INFO] [connected: Notch, uuid: abc-123]`)
	assert.Equal(t, lineKindJoin, kind)
	assert.Equal(t, "Notch", user)
}

func TestParseLine_StripsANSIEscapeSequences(t *testing.T) {
	clean, _, _ := parseLine("\x1b[32mhello\x1b[0m world")
	assert.Equal(t, "hello world", clean)
}

func TestParseLine_PlainLineIsNone(t *testing.T) {
	_, kind, _ := parseLine("just a regular log line")
	assert.Equal(t, lineKindNone, kind)
}
