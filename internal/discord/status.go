package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// SessionData provides the data needed to render the status embed.
// This interface decouples the embed from the SessionManager
// implementation; the commands package adapts the manager to it.
type SessionData interface {
	IsActive() bool
	IsListening() bool
	SessionID() string
	ChannelID() string
	StartedBy() string
	StartedAt() time.Time
	ConversationState() string
}

// embedColorGreen is the embed sidebar color for an active session.
const embedColorGreen = 0x2ECC71

// embedColorRed is the embed sidebar color when no session is active.
const embedColorRed = 0xE74C3C

// StatusRefreshID is the custom ID of the refresh button attached to
// the status embed. The commands package registers a component handler
// under this ID.
const StatusRefreshID = "status_refresh"

// StatusComponents returns the message components attached to the
// status embed: a single refresh button.
func StatusComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Refresh",
					Style:    discordgo.SecondaryButton,
					CustomID: StatusRefreshID,
				},
			},
		},
	}
}

// BuildStatusEmbed renders the session and pipeline state as an embed.
// When no session is active it returns an idle embed pointing at /join.
func BuildStatusEmbed(data SessionData, snap Snapshot) *discordgo.MessageEmbed {
	if !data.IsActive() {
		return buildIdleEmbed()
	}

	listening := "no"
	if data.IsListening() {
		listening = "yes"
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Session ID", Value: fmt.Sprintf("`%s`", data.SessionID()), Inline: true},
		{Name: "Channel", Value: fmt.Sprintf("<#%s>", data.ChannelID()), Inline: true},
		{Name: "Uptime", Value: formatDuration(time.Since(data.StartedAt())), Inline: true},
		{Name: "Started By", Value: fmt.Sprintf("<@%s>", data.StartedBy()), Inline: true},
		{Name: "Listening", Value: listening, Inline: true},
	}
	if data.IsListening() {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Conversation", Value: data.ConversationState(), Inline: true,
		})
	}
	fields = append(fields,
		&discordgo.MessageEmbedField{Name: "Utterances", Value: fmt.Sprintf("%d", snap.Utterances), Inline: true},
		&discordgo.MessageEmbedField{Name: "Errors", Value: fmt.Sprintf("%d", snap.Errors), Inline: true},
	)

	if latency := formatLatencyField(snap); latency != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Pipeline Latency",
			Value:  latency,
			Inline: false,
		})
	}

	return &discordgo.MessageEmbed{
		Title:  "Alvin Status",
		Color:  embedColorGreen,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Voice session",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// buildIdleEmbed renders the no-session state.
func buildIdleEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Alvin Status",
		Description: "Not connected to a voice channel. Join one and use `/join` to invite the assistant.",
		Color:       embedColorRed,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "No session",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// formatLatencyField builds a compact multi-line string showing pipeline
// latencies. Returns empty string if no latency data is available.
func formatLatencyField(snap Snapshot) string {
	var lines []string
	if snap.STT.P50 > 0 || snap.STT.P95 > 0 {
		lines = append(lines, fmt.Sprintf("STT: p50=%s p95=%s", formatMs(snap.STT.P50), formatMs(snap.STT.P95)))
	}
	if snap.LLM.P50 > 0 || snap.LLM.P95 > 0 {
		lines = append(lines, fmt.Sprintf("LLM: p50=%s p95=%s", formatMs(snap.LLM.P50), formatMs(snap.LLM.P95)))
	}
	if snap.TTS.P50 > 0 || snap.TTS.P95 > 0 {
		lines = append(lines, fmt.Sprintf("TTS: p50=%s p95=%s", formatMs(snap.TTS.P50), formatMs(snap.TTS.P95)))
	}
	if len(lines) == 0 {
		return ""
	}
	var result strings.Builder
	result.WriteString("```\n")
	for _, line := range lines {
		result.WriteString(line + "\n")
	}
	result.WriteString("```")
	return result.String()
}

// formatMs formats a duration as milliseconds with one decimal place.
func formatMs(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	return fmt.Sprintf("%.1fms", ms)
}

// formatDuration formats a duration as "Xh Ym Zs".
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
