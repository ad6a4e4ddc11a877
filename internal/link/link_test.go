package link

import (
	"strings"
	"testing"

	"github.com/jkaflik/shade2mqtt/internal/transmit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	t.Run("lines are split and terminators dropped", func(t *testing.T) {
		var lines []string
		err := ReadLines(strings.NewReader("boot\r\n!!READY!!\r\n\r\nxmit +A1\n"), func(line string) {
			lines = append(lines, line)
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"boot", "!!READY!!", "xmit +A1"}, lines)
	})

	t.Run("unterminated last line is delivered", func(t *testing.T) {
		var lines []string
		require.NoError(t, ReadLines(strings.NewReader("partial"), func(line string) {
			lines = append(lines, line)
		}))

		assert.Equal(t, []string{"partial"}, lines)
	})
}

func TestDumbWriteLine(t *testing.T) {
	t.Run("every write is acknowledged through post", func(t *testing.T) {
		var posted []func()
		var received []string
		d := &Dumb{
			Name:   "dumb",
			Post:   func(f func()) { posted = append(posted, f) },
			OnLine: func(line string) { received = append(received, line) },
		}

		require.NoError(t, d.WriteLine("+ABC"))
		assert.Empty(t, received, "acknowledgement is never delivered synchronously")
		require.Len(t, posted, 1)

		posted[0]()
		assert.Equal(t, []string{transmit.ReadyToken}, received)
	})

	t.Run("without handlers writes only log", func(t *testing.T) {
		assert.NoError(t, (&Dumb{Name: "dumb"}).WriteLine("+ABC"))
	})
}
