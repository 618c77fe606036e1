package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/logging"
	"khm-membership/internal/infra/metrics"
)

// Compile-time check
var _ MembershipTasksUseCase = (*membershipTasksUC)(nil)

const (
	NotificationExpired  = "membership_expired"
	NotificationExpiring = "membership_expiring"
)

// TaskReport summarizes one daily run.
type TaskReport struct {
	Expired int `json:"expired"`
	Warned  int `json:"warned"`
}

// MembershipTasksUseCase holds the scheduled membership maintenance jobs.
type MembershipTasksUseCase interface {
	ProcessExpirations(ctx context.Context) (int, error)
	SendExpirationWarnings(ctx context.Context) (int, error)
	RunDaily(ctx context.Context) (TaskReport, error)
}

type membershipTasksUC struct {
	memberships   repository.MembershipRepository
	notifications repository.NotificationLogRepository
	users         repository.UserRepository
	levels        repository.LevelRepository
	email         EmailUseCase
	site          SiteInfo
	warningDays   int
	now           func() time.Time
	log           *zerolog.Logger
}

func NewMembershipTasksUseCase(
	memberships repository.MembershipRepository,
	notifications repository.NotificationLogRepository,
	users repository.UserRepository,
	levels repository.LevelRepository,
	email EmailUseCase,
	site SiteInfo,
	warningDays int,
	logger *zerolog.Logger,
) *membershipTasksUC {
	l := logger.With().Str("component", "membership_tasks_uc").Logger()
	return &membershipTasksUC{
		memberships:   memberships,
		notifications: notifications,
		users:         users,
		levels:        levels,
		email:         email,
		site:          site,
		warningDays:   warningDays,
		now:           time.Now,
		log:           &l,
	}
}

// ProcessExpirations expires active memberships past their end date and
// sends each member a single expiry email.
func (u *membershipTasksUC) ProcessExpirations(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "MembershipTasksUC.ProcessExpirations")()

	due, err := u.memberships.FindExpired(ctx, repository.NoTX, u.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, m := range due {
		if err := u.memberships.Expire(ctx, repository.NoTX, m.UserID, m.MembershipID); err != nil {
			u.log.Error().Err(err).Int64("membership", m.ID).Msg("expire membership failed")
			continue
		}
		expired++
		metrics.IncMembershipTransition(string(model.MembershipStatusExpired))
		u.notifyOnce(ctx, m, NotificationExpired, NotificationExpired)
	}
	if expired > 0 {
		u.log.Info().Int("count", expired).Msg("memberships expired")
	}
	return expired, nil
}

// SendExpirationWarnings emails members whose membership ends within the
// warning window. Each end date is announced once.
func (u *membershipTasksUC) SendExpirationWarnings(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "MembershipTasksUC.SendExpirationWarnings")()

	if u.warningDays <= 0 {
		return 0, nil
	}
	now := u.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, u.warningDays+1).Add(-time.Second)

	list, err := u.memberships.FindExpiring(ctx, repository.NoTX, from, to)
	if err != nil {
		return 0, err
	}
	warned := 0
	for _, m := range list {
		if m.EndDate == nil {
			continue
		}
		kind := NotificationExpiring + ":" + m.EndDate.Format("2006-01-02")
		if u.notifyOnce(ctx, m, NotificationExpiring, kind) {
			warned++
		}
	}
	return warned, nil
}

func (u *membershipTasksUC) RunDaily(ctx context.Context) (TaskReport, error) {
	var r TaskReport
	var err error
	if r.Expired, err = u.ProcessExpirations(ctx); err != nil {
		metrics.IncJobRun("membership_expirations", "error")
		return r, err
	}
	metrics.IncJobRun("membership_expirations", "success")
	if r.Warned, err = u.SendExpirationWarnings(ctx); err != nil {
		metrics.IncJobRun("membership_warnings", "error")
		return r, err
	}
	metrics.IncJobRun("membership_warnings", "success")
	return r, nil
}

// notifyOnce sends template unless kind was already logged for the membership.
// It reports whether an email went out.
func (u *membershipTasksUC) notifyOnce(ctx context.Context, m *model.Membership, template, kind string) bool {
	log := u.log.With().Int64("membership", m.ID).Str("kind", kind).Logger()

	sent, err := u.notifications.Exists(ctx, repository.NoTX, m.ID, kind)
	if err != nil {
		log.Error().Err(err).Msg("notification log lookup failed")
		return false
	}
	if sent {
		return false
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, m.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("membership owner not found")
		return false
	}
	levelName := "Membership"
	if lvl, err := u.levels.FindByID(ctx, repository.NoTX, m.MembershipID); err == nil && lvl.Name != "" {
		levelName = lvl.Name
	}
	data := map[string]any{
		"user_name":   displayName(user),
		"user_email":  user.Email,
		"level_name":  levelName,
		"level_id":    m.MembershipID,
		"account_url": strings.TrimRight(u.site.URL, "/") + "/account/",
	}
	if m.EndDate != nil {
		data["enddate"] = m.EndDate.Format("2006-01-02")
	}
	if err := u.email.Send(ctx, model.Message{TemplateKey: template, To: user.Email, Data: data}); err != nil {
		log.Error().Err(err).Msg("membership notification failed")
		return false
	}
	if err := u.notifications.Save(ctx, repository.NoTX, m.ID, m.UserID, kind); err != nil {
		log.Error().Err(err).Msg("notification log save failed")
	}
	return true
}
