package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"bump_go/models"
	"bump_go/pkg/storage"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"golang.org/x/time/rate"
)

// Dialer открывает долгоживущие соединения для аккаунтов.
// Соединение живёт, пока его не закроет трекер здоровья аккаунтов.
type Dialer struct {
	DB *storage.DB
}

func NewDialer(db *storage.DB) *Dialer {
	return &Dialer{DB: db}
}

// Conn — установленное и проверенное соединение одного аккаунта.
// Все операции отправки кампаний идут через него.
type Conn struct {
	account models.Account
	client  *telegram.Client
	api     *tg.Client
	limiter *rate.Limiter
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error

	mu    sync.Mutex
	peers map[string]tg.InputPeerClass
}

// Dial запускает клиента аккаунта и проверяет авторизацию.
// Неавторизованная сессия возвращает ошибку класса auth_lost,
// чтобы трекер мог сразу перевести аккаунт в Unauthorized.
func (d *Dialer) Dial(ctx context.Context, acc models.Account) (*Conn, error) {
	client, err := newClient(acc, d.DB.Conn, nil)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		account: acc,
		client:  client,
		// Грубый потолок частоты запросов одного аккаунта, чтобы не
		// провоцировать FLOOD_WAIT даже при агрессивной конфигурации пауз
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		cancel:  cancel,
		done:    make(chan struct{}),
		peers:   make(map[string]tg.InputPeerClass),
	}

	ready := make(chan error, 1)
	go func() {
		defer close(c.done)
		c.runErr = client.Run(runCtx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				ready <- Classify(err)
				return err
			}
			if !status.Authorized {
				err := &models.DeliveryError{Kind: models.ErrKindAuthLost, Err: errors.New("сессия не авторизована")}
				ready <- err
				return err
			}
			c.api = tg.NewClient(client)
			ready <- nil
			// Держим соединение открытым до явного закрытия
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-c.done
			return nil, err
		}
		log.Printf("[TELEGRAM] аккаунт %s: соединение установлено", acc.Phone)
		return c, nil
	case <-c.done:
		cancel()
		return nil, Classify(fmt.Errorf("клиент завершился при подключении: %w", c.runErr))
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	}
}

// Close останавливает клиента и дожидается завершения его цикла.
func (c *Conn) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// Ping проверяет живость сессии запросом собственного профиля.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.UsersGetFullUser(ctx, &tg.InputUserSelf{})
	return Classify(err)
}

// resolvePeer превращает идентификатор чата (@username или ссылка t.me)
// во входной peer. Результат кэшируется на время жизни соединения.
func (c *Conn) resolvePeer(ctx context.Context, target string) (tg.InputPeerClass, error) {
	username := strings.TrimPrefix(strings.TrimPrefix(target, "https://t.me/"), "@")

	c.mu.Lock()
	if p, ok := c.peers[username]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, Classify(err)
	}

	var peer tg.InputPeerClass
	for _, chat := range resolved.GetChats() {
		switch ch := chat.(type) {
		case *tg.Channel:
			peer = &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
		case *tg.Chat:
			peer = &tg.InputPeerChat{ChatID: ch.ID}
		}
		if peer != nil {
			break
		}
	}
	if peer == nil {
		for _, u := range resolved.GetUsers() {
			if usr, ok := u.(*tg.User); ok {
				peer = &tg.InputPeerUser{UserID: usr.ID, AccessHash: usr.AccessHash}
				break
			}
		}
	}
	if peer == nil {
		return nil, &models.DeliveryError{Kind: models.ErrKindTargetBanned, Err: fmt.Errorf("чат %s не найден", target)}
	}

	c.mu.Lock()
	c.peers[username] = peer
	c.mu.Unlock()
	return peer, nil
}

// Send отправляет контент кампании в целевой чат. Ссылка на канал-хранилище
// пересылается, чтобы сохранить медиа, готовый текст отправляется как есть.
func (c *Conn) Send(ctx context.Context, target string, content models.Content) error {
	peer, err := c.resolvePeer(ctx, target)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if content.StorageChannel != "" {
		from, err := c.resolvePeer(ctx, content.StorageChannel)
		if err != nil {
			return err
		}
		_, err = c.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
			FromPeer: from,
			ID:       []int{content.StorageMessageID},
			ToPeer:   peer,
			RandomID: []int64{rand.Int63()},
		})
		return Classify(err)
	}

	_, err = c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  content.Text,
		RandomID: rand.Int63(),
	})
	return Classify(err)
}

// MarkRead отмечает историю чата прочитанной, имитируя живого пользователя.
func (c *Conn) MarkRead(ctx context.Context, target string) error {
	peer, err := c.resolvePeer(ctx, target)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if ch, ok := peer.(*tg.InputPeerChannel); ok {
		_, err = c.api.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash},
		})
		return Classify(err)
	}
	_, err = c.api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{Peer: peer})
	return Classify(err)
}

// SimulateTyping показывает собеседникам статус «печатает…».
func (c *Conn) SimulateTyping(ctx context.Context, target string) error {
	peer, err := c.resolvePeer(ctx, target)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = c.api.MessagesSetTyping(ctx, &tg.MessagesSetTypingRequest{
		Peer:   peer,
		Action: &tg.SendMessageTypingAction{},
	})
	return Classify(err)
}
