package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/infra/logging"
	"khm-membership/internal/infra/metrics"
)

// Compile-time check
var _ EmailUseCase = (*emailUC)(nil)

// Settings groups, named after the original option keys.
const (
	SettingsEmailDelivery = "khm_email_delivery"
	SettingsEmailSMTP     = "khm_email_smtp"
	SettingsEmailAPI      = "khm_email_api"

	queueLockKey = "khm_email_queue_processing"
)

var templatePriorities = map[string]int{
	"gift_notification": 10,
	"checkout_paid":     8,
	"welcome":           5,
	"newsletter":        1,
}

const defaultPriority = 5

// TemplatePriority is the queue priority of a template; higher goes first.
func TemplatePriority(key string) int {
	if p, ok := templatePriorities[key]; ok {
		return p
	}
	return defaultPriority
}

// EmailUseCase renders, logs, queues and delivers transactional email.
type EmailUseCase interface {
	Send(ctx context.Context, msg model.Message) error
	Render(key string, data map[string]any) (string, error)
	ProcessQueue(ctx context.Context) (int, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (model.CleanupResult, error)
	Stats(ctx context.Context) (model.EmailStats, error)
	SendTest(ctx context.Context, to string) error
	Settings(ctx context.Context) (model.EmailSettings, error)
	SaveSettings(ctx context.Context, s model.EmailSettings) error
}

// SecretBox encrypts settings secrets at rest (security.EncryptionService).
type SecretBox interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) (string, error)
}

// EmailOptions are the deployment defaults; stored settings override them.
type EmailOptions struct {
	Site       SiteInfo
	Method     model.DeliveryMethod
	UseQueue   bool
	FromEmail  string
	FromName   string
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int
	LockTTL    time.Duration
}

type emailUC struct {
	logs      repository.EmailLogRepository
	queue     repository.EmailQueueRepository
	settings  repository.SettingsRepository
	tm        repository.TransactionManager
	templates adapter.TemplateSource
	mailers   adapter.MailerFactory
	locker    adapter.Locker
	secrets   SecretBox
	opts      EmailOptions
	now       func() time.Time
	log       *zerolog.Logger
}

func NewEmailUseCase(
	logs repository.EmailLogRepository,
	queue repository.EmailQueueRepository,
	settings repository.SettingsRepository,
	tm repository.TransactionManager,
	templates adapter.TemplateSource,
	mailers adapter.MailerFactory,
	locker adapter.Locker,
	secrets SecretBox,
	opts EmailOptions,
	logger *zerolog.Logger,
) *emailUC {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.Method == "" {
		opts.Method = model.DeliveryDefault
	}
	l := logger.With().Str("component", "email_uc").Logger()
	return &emailUC{
		logs:      logs,
		queue:     queue,
		settings:  settings,
		tm:        tm,
		templates: templates,
		mailers:   mailers,
		locker:    locker,
		secrets:   secrets,
		opts:      opts,
		now:       time.Now,
		log:       &l,
	}
}

// Send renders the template, logs the attempt and either queues or delivers it.
func (u *emailUC) Send(ctx context.Context, msg model.Message) error {
	defer logging.TraceDuration(u.log, "EmailUC.Send")()

	if msg.To == "" || msg.TemplateKey == "" {
		return domain.ErrInvalidArgument
	}
	body, err := u.Render(msg.TemplateKey, msg.Data)
	if err != nil {
		u.log.Error().Err(err).Str("template", msg.TemplateKey).Msg("template render failed")
		return err
	}
	settings, err := u.Settings(ctx)
	if err != nil {
		return err
	}

	env := u.envelope(msg, settings, body)
	priority := TemplatePriority(msg.TemplateKey)
	entry := &model.EmailLog{
		TemplateKey:    msg.TemplateKey,
		Recipient:      msg.To,
		Subject:        env.Subject,
		DeliveryMethod: settings.Delivery.Method,
		Status:         model.EmailStatusPending,
		Priority:       priority,
		Data:           msg.Data,
	}
	logID, err := u.logs.Create(ctx, repository.NoTX, entry)
	if err != nil {
		return err
	}

	if settings.Delivery.UseQueue {
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_, err := u.queue.Enqueue(ctx, tx, &model.QueuedEmail{
				EmailLogID:  logID,
				TemplateKey: msg.TemplateKey,
				Recipient:   msg.To,
				Subject:     env.Subject,
				Body:        body,
				Headers:     env.Headers,
				Data:        msg.Data,
				Priority:    priority,
				MaxRetries:  u.opts.MaxRetries,
				Status:      model.EmailStatusPending,
				NextRetry:   u.now(),
			})
			if err != nil {
				return err
			}
			return u.logs.UpdateStatus(ctx, tx, logID, model.EmailStatusQueued, "")
		})
		if err != nil {
			return err
		}
		metrics.IncEmail(string(settings.Delivery.Method), "queued")
		return nil
	}

	return u.deliver(ctx, settings, env, logID)
}

func (u *emailUC) envelope(msg model.Message, s model.EmailSettings, body string) model.Envelope {
	subject := msg.Subject
	if subject == "" {
		subject = u.defaultSubject(msg.TemplateKey)
	}
	from, fromName := msg.FromEmail, msg.FromName
	if from == "" {
		from = firstNonEmpty(s.Delivery.FromEmail, u.opts.FromEmail, u.opts.Site.AdminEmail)
	}
	if fromName == "" {
		fromName = firstNonEmpty(s.Delivery.FromName, u.opts.FromName, u.opts.Site.Name)
	}
	return model.Envelope{
		FromEmail: from,
		FromName:  fromName,
		To:        msg.To,
		Subject:   subject,
		HTMLBody:  body,
		Headers:   msg.Headers,
	}
}

func (u *emailUC) defaultSubject(key string) string {
	s, ok := u.templates.Subject(key)
	if !ok {
		s, ok = u.templates.Subject("default")
	}
	if !ok || s == "" {
		return u.opts.Site.Name
	}
	if strings.Contains(s, "%s") {
		return fmt.Sprintf(s, u.opts.Site.Name)
	}
	return s
}

// deliver sends immediately and records the outcome on the log row.
func (u *emailUC) deliver(ctx context.Context, s model.EmailSettings, env model.Envelope, logID int64) error {
	method := string(s.Delivery.Method)
	sendErr := u.sendEnvelope(ctx, s, env)
	if sendErr != nil {
		metrics.IncEmail(method, "failed")
		u.log.Error().Err(sendErr).Str("to", logging.Redact(env.To, false)).Msg("email delivery failed")
		if err := u.logs.UpdateStatus(ctx, repository.NoTX, logID, model.EmailStatusFailed, sendErr.Error()); err != nil {
			u.log.Warn().Err(err).Int64("log_id", logID).Msg("email log update failed")
		}
		return sendErr
	}
	metrics.IncEmail(method, "sent")
	return u.logs.UpdateStatus(ctx, repository.NoTX, logID, model.EmailStatusSent, "")
}

func (u *emailUC) sendEnvelope(ctx context.Context, s model.EmailSettings, env model.Envelope) error {
	mailer, err := u.mailers.For(s)
	if err != nil {
		return err
	}
	return mailer.Send(ctx, env)
}

var tokenPattern = regexp.MustCompile(`!!([A-Za-z0-9_]+)!!`)

// Render loads the template and replaces !!token!! placeholders. Unknown
// tokens and values that are not scalars are left as written.
func (u *emailUC) Render(key string, data map[string]any) (string, error) {
	tpl, err := u.templates.Load(key)
	if err != nil {
		return "", err
	}
	now := u.now()
	vars := map[string]any{
		"sitename":    u.opts.Site.Name,
		"siteurl":     u.opts.Site.URL,
		"admin_email": u.opts.Site.AdminEmail,
		"date":        now.Format("2006-01-02"),
		"time":        now.Format("15:04:05"),
	}
	for k, v := range data {
		vars[k] = v
	}
	return tokenPattern.ReplaceAllStringFunc(tpl, func(tok string) string {
		name := tok[2 : len(tok)-2]
		v, ok := vars[name]
		if !ok {
			return tok
		}
		if s, ok := scalarString(v); ok {
			return s
		}
		return tok
	}), nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case decimal.Decimal:
		return t.String(), true
	case bool:
		if t {
			return "1", true
		}
		return "", true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

// ProcessQueue delivers one batch of due queue rows. It returns 0 without
// touching the queue when another run holds the lock.
func (u *emailUC) ProcessQueue(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "EmailUC.ProcessQueue")()

	token, err := u.locker.TryLock(ctx, queueLockKey, u.opts.LockTTL)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		u.log.Debug().Msg("email queue already being processed")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), queueLockKey, token); err != nil {
			u.log.Warn().Err(err).Msg("queue lock release failed")
		}
	}()

	settings, err := u.Settings(ctx)
	if err != nil {
		return 0, err
	}

	var rows []*model.QueuedEmail
	now := u.now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// A run that held the lock longer than its TTL is gone; its claimed rows go back.
		reclaimed, err := u.queue.ReclaimStale(ctx, tx, now.Add(-u.opts.LockTTL))
		if err != nil {
			return err
		}
		if reclaimed > 0 {
			u.log.Warn().Int64("rows", reclaimed).Msg("reclaimed stale processing rows")
		}
		due, err := u.queue.FetchDue(ctx, tx, now, u.opts.BatchSize)
		if err != nil {
			return err
		}
		for _, row := range due {
			if err := u.queue.MarkProcessing(ctx, tx, row.ID, now); err != nil {
				return err
			}
		}
		rows = due
		return nil
	})
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, row := range rows {
		if err := u.processRow(ctx, settings, row); err != nil {
			u.log.Error().Err(err).Int64("queue_id", row.ID).Msg("queue row bookkeeping failed")
		}
		processed++
	}

	if n, err := u.queue.CountPending(ctx, repository.NoTX); err == nil {
		metrics.SetQueueDepth(n)
	}
	if processed > 0 {
		u.log.Info().Int("processed", processed).Msg("email queue batch done")
	}
	return processed, nil
}

func (u *emailUC) processRow(ctx context.Context, s model.EmailSettings, row *model.QueuedEmail) error {
	env := u.envelope(model.Message{To: row.Recipient, Subject: row.Subject, Headers: row.Headers}, s, row.Body)
	method := string(s.Delivery.Method)

	sendErr := u.sendEnvelope(ctx, s, env)
	now := u.now()
	if sendErr == nil {
		metrics.IncEmail(method, "sent")
		metrics.IncQueueProcessed("sent")
		if err := u.queue.MarkSent(ctx, repository.NoTX, row.ID, now); err != nil {
			return err
		}
		return u.logs.UpdateStatus(ctx, repository.NoTX, row.EmailLogID, model.EmailStatusSent, "")
	}

	metrics.IncEmail(method, "failed")
	maxRetries := row.MaxRetries
	if maxRetries <= 0 {
		maxRetries = u.opts.MaxRetries
	}
	attempts := row.RetryCount + 1
	if attempts >= maxRetries {
		metrics.IncQueueProcessed("failed")
		u.log.Error().Err(sendErr).Int64("queue_id", row.ID).Int("attempts", attempts).Msg("email permanently failed")
		if err := u.queue.MarkFailed(ctx, repository.NoTX, row.ID, attempts, sendErr.Error()); err != nil {
			return err
		}
		return u.logs.UpdateStatus(ctx, repository.NoTX, row.EmailLogID, model.EmailStatusFailed, sendErr.Error())
	}

	metrics.IncQueueProcessed("retry")
	next := now.Add(RetryBackoff(u.opts.RetryDelay, attempts))
	u.log.Warn().Err(sendErr).Int64("queue_id", row.ID).Time("next_retry", next).Msg("email delivery failed, retry scheduled")
	return u.queue.ScheduleRetry(ctx, repository.NoTX, row.ID, attempts, next, sendErr.Error())
}

// RetryBackoff is delay * 2^(attempt-1).
func RetryBackoff(delay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20
	}
	return delay * time.Duration(1<<uint(attempt-1))
}

// Cleanup removes sent and failed queue rows and logs older than olderThan.
func (u *emailUC) Cleanup(ctx context.Context, olderThan time.Duration) (model.CleanupResult, error) {
	if olderThan <= 0 {
		olderThan = 30 * 24 * time.Hour
	}
	cutoff := u.now().Add(-olderThan)
	var res model.CleanupResult
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		n, err := u.queue.DeleteOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		res.QueueRows = n
		n, err = u.logs.DeleteOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		res.LogRows = n
		return nil
	})
	if err != nil {
		return model.CleanupResult{}, err
	}
	u.log.Info().Int64("queue_rows", res.QueueRows).Int64("log_rows", res.LogRows).Msg("email cleanup done")
	return res, nil
}

func (u *emailUC) Stats(ctx context.Context) (model.EmailStats, error) {
	return u.logs.Stats(ctx, repository.NoTX)
}

// SendTest delivers the test template right away, bypassing the queue.
func (u *emailUC) SendTest(ctx context.Context, to string) error {
	if to == "" || !strings.Contains(to, "@") {
		return domain.ErrInvalidArgument
	}
	settings, err := u.Settings(ctx)
	if err != nil {
		return err
	}
	settings.Delivery.UseQueue = false
	msg := model.Message{TemplateKey: "test", To: to}
	body, err := u.Render(msg.TemplateKey, nil)
	if err != nil {
		return err
	}
	env := u.envelope(msg, settings, body)
	logID, err := u.logs.Create(ctx, repository.NoTX, &model.EmailLog{
		TemplateKey:    msg.TemplateKey,
		Recipient:      to,
		Subject:        env.Subject,
		DeliveryMethod: settings.Delivery.Method,
		Status:         model.EmailStatusPending,
		Priority:       TemplatePriority(msg.TemplateKey),
	})
	if err != nil {
		return err
	}
	return u.deliver(ctx, settings, env, logID)
}

// Settings loads the three option groups, falling back to deployment defaults,
// and decrypts the stored secrets.
func (u *emailUC) Settings(ctx context.Context) (model.EmailSettings, error) {
	s := model.EmailSettings{
		Delivery: model.DeliverySettings{
			Method:    u.opts.Method,
			UseQueue:  u.opts.UseQueue,
			FromEmail: u.opts.FromEmail,
			FromName:  u.opts.FromName,
		},
	}
	if err := u.loadGroup(ctx, SettingsEmailDelivery, &s.Delivery); err != nil {
		return s, err
	}
	if err := u.loadGroup(ctx, SettingsEmailSMTP, &s.SMTP); err != nil {
		return s, err
	}
	if err := u.loadGroup(ctx, SettingsEmailAPI, &s.API); err != nil {
		return s, err
	}
	if s.Delivery.Method == "" {
		s.Delivery.Method = model.DeliveryDefault
	}

	var err error
	if s.SMTP.Password, err = u.reveal(s.SMTP.Password); err != nil {
		return s, fmt.Errorf("smtp password: %w", err)
	}
	if s.API.APIKey, err = u.reveal(s.API.APIKey); err != nil {
		return s, fmt.Errorf("api key: %w", err)
	}
	return s, nil
}

func (u *emailUC) loadGroup(ctx context.Context, group string, dst any) error {
	err := u.settings.Get(ctx, repository.NoTX, group, dst)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (u *emailUC) reveal(v string) (string, error) {
	if v == "" || u.secrets == nil {
		return v, nil
	}
	return u.secrets.Decrypt(v)
}

// SaveSettings validates and stores the settings. An empty secret keeps the stored one.
func (u *emailUC) SaveSettings(ctx context.Context, s model.EmailSettings) error {
	switch s.Delivery.Method {
	case model.DeliveryDefault, model.DeliverySMTP, model.DeliveryAPI:
	default:
		return domain.ErrInvalidArgument
	}
	if s.Delivery.Method == model.DeliveryAPI && s.API.Provider != model.APIProviderSendGrid && s.API.Provider != model.APIProviderMailgun {
		return domain.ErrInvalidArgument
	}
	switch s.SMTP.Encryption {
	case "", "tls", "ssl", "none":
	default:
		return domain.ErrInvalidArgument
	}

	current, err := u.Settings(ctx)
	if err != nil {
		return err
	}
	if s.SMTP.Password == "" {
		s.SMTP.Password = current.SMTP.Password
	}
	if s.API.APIKey == "" {
		s.API.APIKey = current.API.APIKey
	}
	if u.secrets != nil {
		if s.SMTP.Password, err = u.secrets.Encrypt(s.SMTP.Password); err != nil {
			return err
		}
		if s.API.APIKey, err = u.secrets.Encrypt(s.API.APIKey); err != nil {
			return err
		}
	}

	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.settings.Put(ctx, tx, SettingsEmailDelivery, s.Delivery); err != nil {
			return err
		}
		if err := u.settings.Put(ctx, tx, SettingsEmailSMTP, s.SMTP); err != nil {
			return err
		}
		return u.settings.Put(ctx, tx, SettingsEmailAPI, s.API)
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
