package transfer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"sshmanager/pkg/transfer"
)

// prompter asks the user how to handle each conflict on stdin.
type prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{reader: bufio.NewReader(in), out: out}
}

// Ask implements transfer.ConflictFunc. A trailing "!" on the answer applies
// it to the rest of the batch. Anything that is not an answer aborts.
func (p *prompter) Ask(ctx context.Context, c transfer.Conflict) (transfer.ConflictDecision, bool) {
	if ctx.Err() != nil {
		return transfer.ConflictDecision{}, false
	}

	destination := c.RemotePath
	if c.Direction == transfer.DirectionDownload {
		destination = c.LocalPath
	}

	options := "[o]verwrite, [s]kip, [k]eep both"
	if c.CanResume {
		options = "[o]verwrite, [s]kip, [r]esume, [k]eep both"
	}

	for {
		fmt.Fprintf(p.out, "%s already exists (%d of %d bytes).\n", destination, c.ExistingSize, c.TotalBytes)
		fmt.Fprintf(p.out, "%s, [a]bort; append ! to apply to all: ", options)

		line, err := p.reader.ReadString('\n')
		if err != nil && line == "" {
			return transfer.ConflictDecision{}, false
		}

		answer := strings.ToLower(strings.TrimSpace(line))
		applyToAll := strings.HasSuffix(answer, "!")
		answer = strings.TrimSuffix(answer, "!")

		var resolution transfer.Resolution
		switch answer {
		case "o", "overwrite":
			resolution = transfer.ResolutionOverwrite
		case "s", "skip":
			resolution = transfer.ResolutionSkip
		case "r", "resume":
			if !c.CanResume {
				fmt.Fprintln(p.out, "This file cannot be resumed.")
				continue
			}
			resolution = transfer.ResolutionResume
		case "k", "keep", "keep-both":
			resolution = transfer.ResolutionKeepBoth
		case "a", "abort", "":
			return transfer.ConflictDecision{}, false
		default:
			fmt.Fprintf(p.out, "Unknown answer %q.\n", answer)
			continue
		}

		return transfer.ConflictDecision{Resolution: resolution, ApplyToAll: applyToAll}, true
	}
}

// conflictHandler picks the prompt or a fixed policy from the configured name.
func conflictHandler(policy string, p *prompter) (transfer.ConflictFunc, error) {
	if policy == "" || policy == "ask" {
		return p.Ask, nil
	}
	resolution, err := transfer.ParseResolution(policy)
	if err != nil {
		return nil, fmt.Errorf("invalid conflict policy %q: %w", policy, err)
	}
	return transfer.WithPolicy(resolution), nil
}
