package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockedby/tgcrawler/internal/chats"
	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/phones"
	"github.com/blockedby/tgcrawler/internal/pool"
	"github.com/blockedby/tgcrawler/internal/repository"
	"github.com/blockedby/tgcrawler/internal/scrape"
)

// Service binds the coordinators to task types and owns the shared
// registries of live phones and chats.
type Service struct {
	cfg   *config.Config
	queue *Queue

	phonesRepo     *repository.PhonesRepository
	chatsRepo      *repository.ChatsRepository
	chatPhonesRepo *repository.ChatPhonesRepository

	authorizer *phones.Authorizer
	resolver   *chats.Resolver
	joiner     *chats.Joiner
	members    *scrape.Members
	messages   *scrape.Messages
	monitor    *scrape.Monitor

	// Phones holds phones confirmed READY this process lifetime; Chats
	// holds chats that resolved. Workers block on these instead of polling.
	Phones *pool.Registry[*models.Phone]
	Chats  *pool.Registry[*models.Chat]

	log *logger.Logger
}

func NewService(
	cfg *config.Config,
	queue *Queue,
	phonesRepo *repository.PhonesRepository,
	chatsRepo *repository.ChatsRepository,
	chatPhonesRepo *repository.ChatPhonesRepository,
	authorizer *phones.Authorizer,
	resolver *chats.Resolver,
	joiner *chats.Joiner,
	members *scrape.Members,
	messages *scrape.Messages,
	monitor *scrape.Monitor,
) *Service {
	return &Service{
		cfg:            cfg,
		queue:          queue,
		phonesRepo:     phonesRepo,
		chatsRepo:      chatsRepo,
		chatPhonesRepo: chatPhonesRepo,
		authorizer:     authorizer,
		resolver:       resolver,
		joiner:         joiner,
		members:        members,
		messages:       messages,
		monitor:        monitor,
		Phones:         pool.NewRegistry[*models.Phone](),
		Chats:          pool.NewRegistry[*models.Chat](),
		log:            logger.With("service"),
	}
}

// Register binds every task type on the dispatcher.
func (s *Service) Register(d *Dispatcher) {
	d.Register(TypeAuthorize, s.handleAuthorize)
	d.Register(TypeResolve, s.handleResolve)
	d.Register(TypeJoin, s.handleJoin)
	d.Register(TypeMembers, s.handleMembers)
	d.Register(TypeMessages, s.handleMessages)
	d.Register(TypeMonitor, s.handleMonitor)
}

// Bootstrap loads the parser's phones and chats into the registries and
// re-enqueues whatever was in flight before the last shutdown: unauthorized
// phones go back through authorization, unresolved chats through resolution,
// monitored chats back to their watchers.
func (s *Service) Bootstrap(ctx context.Context) error {
	phoneRows, err := s.phonesRepo.ListByParser(ctx, s.cfg.ParserID)
	if err != nil {
		return fmt.Errorf("bootstrap phones: %w", err)
	}
	for _, p := range phoneRows {
		switch {
		case p.IsReady():
			s.Phones.Put(p.ID, p)
		case p.Status == models.PhoneStatusBan:
			// terminal, operator intervention required
		default:
			if err := s.queue.EnqueueHigh(ctx, Envelope{Type: TypeAuthorize, PhoneID: p.ID}); err != nil {
				return err
			}
		}
	}

	chatRows, err := s.chatsRepo.ListByParser(ctx, s.cfg.ParserID)
	if err != nil {
		return fmt.Errorf("bootstrap chats: %w", err)
	}
	for _, c := range chatRows {
		switch c.Status {
		case models.ChatStatusCreated:
			if err := s.queue.EnqueueHigh(ctx, Envelope{Type: TypeResolve, ChatID: c.ID}); err != nil {
				return err
			}
		case models.ChatStatusAvailable:
			s.Chats.Put(c.ID, c)
		case models.ChatStatusMonitoring:
			s.Chats.Put(c.ID, c)
			if err := s.queue.EnqueueLow(ctx, Envelope{Type: TypeMonitor, ChatID: c.ID}); err != nil {
				return err
			}
		}
	}

	s.log.Info().Int("phones", s.Phones.Len()).Int("chats", s.Chats.Len()).Msg("service: bootstrap complete")
	return nil
}

func (s *Service) handleAuthorize(ctx context.Context, env Envelope) error {
	phone, err := s.phonesRepo.GetByID(ctx, env.PhoneID)
	if err != nil {
		return fmt.Errorf("load phone %s: %w", env.PhoneID, err)
	}

	if err := s.authorizer.Authorize(ctx, phone); err != nil {
		if errors.Is(err, phones.ErrConnect) {
			return fmt.Errorf("%w: %v", ErrRetryLater, err)
		}
		return err
	}

	if phone.IsReady() {
		s.Phones.Put(phone.ID, phone)
	}
	return nil
}

func (s *Service) handleResolve(ctx context.Context, env Envelope) error {
	chat, err := s.loadChat(ctx, env.ChatID)
	if err != nil {
		return err
	}

	candidates, err := s.phonesRepo.ListReady(ctx, s.cfg.ParserID)
	if err != nil {
		return fmt.Errorf("list ready phones: %w", err)
	}

	if err := s.resolver.Resolve(ctx, chat, candidates); err != nil {
		if errors.Is(err, chats.ErrNoPhones) {
			return fmt.Errorf("%w: %v", ErrRetryLater, err)
		}
		return err
	}

	if chat.Status == models.ChatStatusAvailable {
		s.Chats.Put(chat.ID, chat)
		return s.queue.EnqueueHigh(ctx, Envelope{Type: TypeJoin, ChatID: chat.ID})
	}
	return nil
}

func (s *Service) handleJoin(ctx context.Context, env Envelope) error {
	chat, err := s.loadChat(ctx, env.ChatID)
	if err != nil {
		return err
	}
	if chat.Status == models.ChatStatusFailed {
		return nil
	}

	wired, err := s.loadWiring(ctx, chat.ID)
	if err != nil {
		return err
	}

	candidates, err := s.phonesRepo.ListReady(ctx, s.cfg.ParserID)
	if err != nil {
		return fmt.Errorf("list ready phones: %w", err)
	}

	for _, phone := range candidates {
		if wired.CountUsing() >= s.cfg.Profile.JoinCeiling {
			break
		}
		if wired.Contains(phone.ID) {
			continue
		}

		err := s.joiner.Join(ctx, chat, phone, wired)
		switch {
		case err == nil:
		case errors.Is(err, chats.ErrPhoneFull):
			continue
		case errors.Is(err, chats.ErrChatFailed):
			return nil
		default:
			s.log.Error().Err(err).Str("chat", chat.ID).Str("phone", phone.Number).Msg("service: join attempt failed")
		}
	}

	if wired.CountUsing() == 0 {
		return fmt.Errorf("%w: no phone could join %s", ErrRetryLater, chat.Link)
	}

	if err := s.queue.EnqueueLow(ctx, Envelope{Type: TypeMembers, ChatID: chat.ID}); err != nil {
		return err
	}
	return s.queue.EnqueueLow(ctx, Envelope{Type: TypeMessages, ChatID: chat.ID})
}

func (s *Service) handleMembers(ctx context.Context, env Envelope) error {
	return s.runScrape(ctx, env.ChatID, s.members.Run)
}

func (s *Service) handleMessages(ctx context.Context, env Envelope) error {
	return s.runScrape(ctx, env.ChatID, s.messages.Run)
}

func (s *Service) handleMonitor(ctx context.Context, env Envelope) error {
	return s.runScrape(ctx, env.ChatID, s.monitor.Run)
}

func (s *Service) runScrape(ctx context.Context, chatID string, run func(ctx context.Context, chat *models.Chat, wired *pool.WiredPhones) error) error {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return err
	}
	wired, err := s.loadWiring(ctx, chat.ID)
	if err != nil {
		return err
	}

	if err := run(ctx, chat, wired); err != nil {
		if errors.Is(err, scrape.ErrNoPhones) {
			return fmt.Errorf("%w: %v", ErrRetryLater, err)
		}
		return err
	}
	return nil
}

func (s *Service) loadChat(ctx context.Context, id string) (*models.Chat, error) {
	chat := &models.Chat{ID: id}
	if err := s.chatsRepo.Reload(ctx, chat); err != nil {
		return nil, fmt.Errorf("load chat %s: %w", id, err)
	}
	return chat, nil
}

func (s *Service) loadWiring(ctx context.Context, chatID string) (*pool.WiredPhones, error) {
	records, err := s.chatPhonesRepo.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load wiring for %s: %w", chatID, err)
	}
	return pool.NewWiredPhones(s.chatPhonesRepo, records), nil
}
