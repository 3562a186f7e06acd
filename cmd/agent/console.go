package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Hearing/internal/domain"
	"github.com/dkeye/Hearing/internal/session"
)

// console prints consultation prompts and routes the fatal signal to cancel.
type console struct {
	out    io.Writer
	cancel context.CancelCauseFunc
}

type consoleInvite struct {
	out    io.Writer
	invite session.ConsultationInvite
}

func (h consoleInvite) Close() {
	fmt.Fprintf(h.out, "[invite %s] closed\n", h.invite.RoomLabel)
}

func (h consoleInvite) MarkDeclinedByThirdParty() {
	fmt.Fprintf(h.out, "[invite %s] declined by a linked participant\n", h.invite.RoomLabel)
}

func (c *console) ShowConsultationInvite(invite session.ConsultationInvite) session.InviteHandle {
	fmt.Fprintf(c.out, "[invite %s] %s asks you to join a consultation", invite.RoomLabel, invite.RequestedBy)
	if len(invite.LinkedNames) > 0 {
		fmt.Fprintf(c.out, " with %s", strings.Join(invite.LinkedNames, ", "))
	}
	fmt.Fprintf(c.out, " (accept %[1]s | reject %[1]s)\n", invite.RoomLabel)
	return consoleInvite{out: c.out, invite: invite}
}

func (c *console) WaitingOnLinkedParticipants(roomLabel string, pending []string) {
	fmt.Fprintf(c.out, "[invite %s] waiting on %s\n", roomLabel, strings.Join(pending, ", "))
}

func (c *console) LinkedParticipantDeclined(n session.DeclinedNotice) {
	fmt.Fprintf(c.out, "[invite %s] %s declined\n", n.RoomLabel, n.ParticipantName)
}

func (c *console) InviteeDeclined(n session.DeclinedNotice) {
	fmt.Fprintf(c.out, "[consultation %s] %s declined your invitation\n", n.RoomLabel, n.ParticipantName)
}

func (c *console) ConsultationResolved(o session.ConsultationOutcome) {
	fmt.Fprintf(c.out, "[invite %s] %s\n", o.RoomLabel, o.Answer)
}

func (c *console) Fatal(err error) {
	log.Error().Err(err).Str("module", "agent").Msg("session cannot continue")
	c.cancel(err)
}

// readCommands drives the session from line-based input until in closes.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, s *session.Session) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch {
		case fields[0] == "accept" && len(fields) == 2:
			err = s.RespondToConsultation(ctx, fields[1], domain.AnswerAccepted)
		case fields[0] == "reject" && len(fields) == 2:
			err = s.RespondToConsultation(ctx, fields[1], domain.AnswerRejected)
		case fields[0] == "invite" && len(fields) == 3:
			var id string
			id, err = s.InviteToConsultation(ctx, fields[1], fields[2])
			if err == nil {
				fmt.Fprintf(out, "invitation %s sent\n", id)
			}
		default:
			fmt.Fprintln(out, "commands: accept <room> | reject <room> | invite <room> <participant>")
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
