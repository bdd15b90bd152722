package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandParser(t *testing.T) {
	p := NewCommandParser()

	tests := []struct {
		text    string
		cmd     string
		args    []string
		command bool
	}{
		{text: "/balance", cmd: "balance", command: true},
		{text: "!Transfer @petya 20", cmd: "transfer", args: []string{"@petya", "20"}, command: true},
		{text: "/buy@AstroCoinsBot 12", cmd: "buy", args: []string{"12"}, command: true},
		{text: "  /баланс  ", cmd: "баланс", command: true},
		{text: "/deliver   3f2c9a1e-7b4d-4c2a-9e8f-1a2b3c4d5e6f", cmd: "deliver", args: []string{"3f2c9a1e-7b4d-4c2a-9e8f-1a2b3c4d5e6f"}, command: true},
		{text: "привет", command: false},
		{text: "/", command: false},
		{text: "/@bot", command: false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.command, ok)
			if !tt.command {
				return
			}
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, len(tt.args), len(args))
			for i := range tt.args {
				assert.Equal(t, tt.args[i], args[i])
			}
		})
	}
}
