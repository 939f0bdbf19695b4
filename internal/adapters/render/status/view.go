package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/procure-cli/internal/application"
	"github.com/bnema/procure-cli/internal/domain"
)

// View is the render-ready snapshot of the session lifecycle.
type View struct {
	State       application.SessionState
	Subject     string
	Email       string
	Kind        domain.LoginKind
	Roles       []string
	Permissions []string
	ExpiresAt   time.Time
	Renewable   bool
}

type RenderOptions struct {
	Now        time.Time
	WarnWindow time.Duration
}

func ViewFromSession(state application.SessionState, session *domain.Session) View {
	view := View{State: state}
	if session == nil {
		return view
	}
	view.Subject = session.Claims.Subject
	view.Email = session.Claims.Email
	view.Kind = session.Claims.Kind
	view.Roles = session.Claims.Roles
	view.Permissions = session.Claims.Permissions
	view.ExpiresAt = session.ExpiresAt
	view.Renewable = session.CanRenew()
	return view
}

func renderView(view View, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Procurement Session"),
		stateLine(view.State, s),
	}

	if view.State == application.StateAnonymous {
		lines = append(lines, s.empty.Render("Not logged in. Run `procure login` to start a session."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, s.section.Render(identityBlock(view, s)))
	lines = append(lines, expiryLine(view, opts, s))

	if view.State == application.StateWarning {
		notice := "Session expires soon: renew with `procure renew` or log out."
		if !view.Renewable {
			notice = "Session expires soon and cannot renew: log in again to continue."
		}
		lines = append(lines, s.warning.Render(notice))
	}

	if len(view.Permissions) > 0 {
		lines = append(lines, s.section.Render(permissionsBlock(view.Permissions, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func stateLine(state application.SessionState, s styles) string {
	switch state {
	case application.StateAuthenticated:
		return s.stateOK.Render("● authenticated")
	case application.StateWarning:
		return s.stateWarning.Render("● authenticated (expiring soon)")
	default:
		return s.stateAbsent.Render("○ anonymous")
	}
}

func identityBlock(view View, s styles) string {
	identity := view.Email
	if identity == "" {
		identity = view.Subject
	}

	parts := []string{
		s.identity.Render(fmt.Sprintf("%s (%s)", identity, kindLabel(view.Kind))),
	}
	if len(view.Roles) > 0 {
		parts = append(parts, s.detail.Render(s.detailKey.Render("roles: ")+strings.Join(view.Roles, ", ")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func kindLabel(kind domain.LoginKind) string {
	switch kind {
	case domain.LoginKindMember:
		return "organization member"
	case domain.LoginKindSupplier:
		return "external supplier"
	default:
		return "unknown"
	}
}

func expiryLine(view View, opts RenderOptions, s styles) string {
	remaining := view.ExpiresAt.Sub(opts.Now)
	label := s.detailKey.Render("expires: ")

	if remaining <= 0 {
		return label + s.expirySoon.Render("expired")
	}

	style := s.expiryHealthy
	warnWindow := opts.WarnWindow
	if warnWindow <= 0 {
		warnWindow = application.DefaultWarnWindow
	}
	if remaining <= warnWindow {
		style = s.expirySoon
	}

	renewNote := "renewable"
	if !view.Renewable {
		renewNote = "not renewable"
	}
	return label + style.Render(fmt.Sprintf("in %s (%s, %s)",
		formatRemaining(remaining),
		view.ExpiresAt.UTC().Format("15:04 MST"),
		renewNote,
	))
}

func permissionsBlock(permissions []string, s styles) string {
	parts := []string{s.detailKey.Render("permissions:")}
	for _, permission := range permissions {
		parts = append(parts, s.detail.Render("  "+permission))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func formatRemaining(d time.Duration) string {
	if d >= time.Hour {
		hours := int(d / time.Hour)
		minutes := int(d % time.Hour / time.Minute)
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return fmt.Sprintf("%ds", int(d/time.Second))
}
