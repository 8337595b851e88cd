package router

import (
	"sort"

	"schedbot/pkg/tgui"
)

// helpText renders the visible command list in HTML parse mode.
func (m *CommandManager) helpText() string {
	cmds := m.snapshot()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	lines := []tgui.H{tgui.B("Commands")}
	for _, c := range cmds {
		if c.Hidden {
			continue
		}
		line := tgui.Code("/" + c.Name)
		if c.Description != "" {
			line = tgui.JoinH(" ", line, tgui.Esc("- "+c.Description))
		}
		lines = append(lines, line)
	}
	return tgui.JoinH("\n", lines...).String()
}
