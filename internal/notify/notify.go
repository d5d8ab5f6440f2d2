// Package notify turns judging events into team notices and routes them
// through the hub to each team's text channel topic.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/directory"
	"github.com/DoyleJ11/hackathon-judging/internal/hub"
)

var ErrInvalidMedium = errors.New("room has an invalid medium; the team will have to be pinged manually")

type Publisher interface {
	Publish(ctx context.Context, m hub.Message) error
}

// Hub delivers notices as KindNotice messages on the team topic.
type Hub struct {
	pub Publisher
}

func NewHub(pub Publisher) *Hub { return &Hub{pub: pub} }

func (h *Hub) Notify(ctx context.Context, a directory.Artifacts, text string) error {
	if a.TextChannel == "" {
		return fmt.Errorf("notify: %w", directory.ErrNotFound)
	}
	return h.pub.Publish(ctx, hub.Message{
		Topic: hub.TeamTopic(a.TextChannel),
		Kind:  hub.KindNotice,
		Body:  text,
	})
}

// Ping is the pair of messages produced when a team is called: Team goes to
// the team, Volunteer goes back to the operator who ran the ping.
type Ping struct {
	Team      string
	Volunteer string
}

func PingText(team string, a directory.Artifacts, room config.Room) (Ping, error) {
	role := mention(a.Role)
	text := channel(a.TextChannel)
	vc := channel(a.VoiceChannel)
	deskIn := "please report to the front desk as soon as possible, from where you will be directed to your judging room."
	vcIn := fmt.Sprintf("please join %s as soon as possible, and when the judges are ready you will be moved to the judging room.", vc)

	switch room.Medium {
	case config.MediumInPerson:
		return Ping{
			Team: fmt.Sprintf("Hey %s, you're up next for judging! You are being judged **in-person**. %s", role, capitalize(deskIn)),
			Volunteer: fmt.Sprintf("Team `%s` was pinged in %s and told to report to the front desk.\n", team, text) +
				fmt.Sprintf("- Once they arrive at the front desk, please direct them to **%s**, and inform the controller they have been directed to the room.\n", room.Location) +
				fmt.Sprintf("- Once they arrive at %s, please inform the controller they have begun presenting.", room.Location),
		}, nil
	case config.MediumOnline:
		return Ping{
			Team: fmt.Sprintf("Hey %s, you're up next for judging! You are being judged **online**. %s", role, capitalize(vcIn)),
			Volunteer: fmt.Sprintf("Team `%s` was pinged in %s and told to report to %s.\n", team, text, vc) +
				fmt.Sprintf("- Keep an eye on %s to watch for the team joining their VC.\n", vc) +
				fmt.Sprintf("- Once they have joined and the current team (if any) is finished presenting, move them into %s and inform the controller that the new team has begun presenting.", channel(room.JudgingVC)),
		}, nil
	case config.MediumHybrid:
		return Ping{
			Team: fmt.Sprintf("Hey %s, you're up next for judging!\n- For in-person team members: %s\n- For online team members: %s", role, deskIn, vcIn),
			Volunteer: fmt.Sprintf("Team `%s` was pinged in %s and told to report to the front desk and/or %s.\n", team, text, vc) +
				fmt.Sprintf("- Once in-person members arrive at the front desk: direct them to **%s**, and inform the controller they have been directed to the room.\n", room.Location) +
				fmt.Sprintf("- Keep an eye on %s to watch for online members joining their VC, then move them into %s.\n", vc, channel(room.JudgingVC)) +
				"- Once both in-person and online members are in the room, inform the controller they have begun presenting.",
		}, nil
	}
	return Ping{}, ErrInvalidMedium
}

func SkippedText(a directory.Artifacts) string {
	return fmt.Sprintf("%s We didn't see you report for judging, so we've skipped your team for now and moved you to the end of our judging queue. "+
		"If you don't make it when pinged again for your second call time, we will have to exclude your project from the judging.", mention(a.Role))
}

func mention(role string) string { return "@" + role }

func channel(name string) string { return "#" + name }

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
