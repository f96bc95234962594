// Package server builds the roster envelopes broadcast after every presence
// change.
package server

import (
	"strings"

	"github.com/parley-chat/parley/internal/wire"
)

// BuildRoster produces the userlist envelope for the given registry
// snapshot. exclude masks a just-departed name in case the caller's snapshot
// raced a release that another session has not yet observed; pass the empty
// string to keep every name. The content is the remaining names joined by
// newlines with no trailing separator, so an empty room yields an empty
// string rather than a stray newline.
func BuildRoster(names []string, exclude string) wire.Envelope {
	var sb strings.Builder
	for _, name := range names {
		if name == "" || name == exclude {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(name)
	}

	return wire.Envelope{
		Type:    wire.TypeUserlist,
		Sender:  wire.SenderHost,
		Content: sb.String(),
	}
}
