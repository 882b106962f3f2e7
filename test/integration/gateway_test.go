// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/sessiongate/internal/access"
	"github.com/holomush/sessiongate/internal/auth"
	"github.com/holomush/sessiongate/internal/chat"
	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/tcp"
	"github.com/holomush/sessiongate/internal/transport"
)

// stack is a protocol server with sample auth and chat behind a TCP
// listener.
type stack struct {
	tcp      *tcp.Server
	protocol *protocol.Server[ulid.ULID]
	repo     *auth.MemoryRepository
	cancel   context.CancelFunc
	done     chan struct{}
}

func startStack(policy protocol.DuplicatePolicy) *stack {
	repo := auth.NewMemoryRepository()
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1})
	svc, err := auth.NewService(repo, hasher, nil)
	Expect(err).NotTo(HaveOccurred())

	seeds, err := auth.ParseSeeds([]byte(`
accounts:
  - username: alice
    password: password1
    roles: [player]
  - username: mod
    password: password2
    roles: [moderator]
`))
	Expect(err).NotTo(HaveOccurred())
	_, err = seeds.Apply(context.Background(), repo, hasher)
	Expect(err).NotTo(HaveOccurred())

	s := &stack{repo: repo, done: make(chan struct{})}
	router := transport.NewRouter()
	s.tcp, err = tcp.NewServer(tcp.Config{Addr: "127.0.0.1:0", Workers: 4}, router)
	Expect(err).NotTo(HaveOccurred())

	room := chat.NewRoom[ulid.ULID](s.tcp, func(a protocol.Account[ulid.ULID]) string {
		return a.(*auth.Account).Username
	}, nil)
	joined, left := room.Hooks()

	s.protocol, err = protocol.NewServer(protocol.Config[ulid.ULID]{
		Transport:    s.tcp,
		Accounts:     svc,
		Policy:       policy,
		LoginTimeout: time.Minute,
		Hooks: protocol.Hooks[ulid.ULID]{
			Starting: []protocol.StartingHook[ulid.ULID]{
				func(ctx context.Context, conn transport.ConnID, a protocol.Account[ulid.ULID]) error {
					return svc.StartingHook(s.protocol.Sessions())(ctx, conn, a)
				},
				joined,
			},
			Terminating: []protocol.TerminatingHook{left},
		},
	})
	Expect(err).NotTo(HaveOccurred())

	grants := access.DefaultGrants()
	Expect(s.protocol.Mount(router)).To(Succeed())
	Expect(svc.Mount(s.protocol, router)).To(Succeed())
	Expect(room.Mount(s.protocol, router,
		access.Require(grants, s.protocol.Sessions(), auth.RolesKey, access.PermChatSay),
		access.Require(grants, s.protocol.Sessions(), auth.RolesKey, access.PermChatEmote),
	)).To(Succeed())

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		_ = s.tcp.Run(ctx, s.protocol)
	}()
	Eventually(s.tcp.Addr).ShouldNot(BeEmpty())
	return s
}

func (s *stack) stop() {
	s.cancel()
	Eventually(s.done, 10*time.Second).Should(BeClosed())
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func (s *stack) dial() *client {
	conn, err := net.Dial("tcp", s.tcp.Addr())
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(conn.Close)
	c := &client{conn: conn, r: bufio.NewReader(conn)}
	c.expect(protocol.MsgWelcome)
	return c
}

func (c *client) send(name string, payload any) {
	frame, err := tcp.Encode(name, payload)
	Expect(err).NotTo(HaveOccurred())
	_, err = c.conn.Write(frame)
	Expect(err).NotTo(HaveOccurred())
}

func (c *client) next() tcp.Envelope {
	Expect(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
	line, err := c.r.ReadBytes('\n')
	Expect(err).NotTo(HaveOccurred())
	var env tcp.Envelope
	Expect(json.Unmarshal(line, &env)).To(Succeed())
	return env
}

func (c *client) expect(name string) json.RawMessage {
	env := c.next()
	Expect(env.Name).To(Equal(name), "payload: %s", env.Payload)
	return env.Payload
}

func (c *client) login(username, password string) {
	c.send("Login:Sample", auth.Credentials{Username: username, Password: password})
	c.expect(protocol.MsgOK)
}

var _ = Describe("Session gateway over TCP", func() {
	var s *stack

	Context("with the reject policy", func() {
		BeforeEach(func() {
			s = startStack(protocol.PolicyReject)
			DeferCleanup(s.stop)
		})

		It("answers bad credentials with Failed and keeps the connection pending", func() {
			c := s.dial()
			c.send("Login:Sample", auth.Credentials{Username: "alice", Password: "wrong-password"})
			var failure auth.Failure
			Expect(json.Unmarshal(c.expect(protocol.MsgFailed), &failure)).To(Succeed())
			Expect(failure.Reason).To(Equal(auth.ReasonInvalidCredentials))

			c.login("alice", "password1")
		})

		It("refuses a second session for the same account", func() {
			first := s.dial()
			first.login("alice", "password1")

			second := s.dial()
			second.send("Login:Sample", auth.Credentials{Username: "alice", Password: "password1"})
			second.expect(protocol.MsgAccountAlreadyInUse)

			Expect(s.protocol.Sessions().Len()).To(Equal(1))
		})

		It("gates handlers on login state", func() {
			c := s.dial()
			c.send(chat.MsgWho, nil)
			c.expect(protocol.MsgNotLoggedIn)

			c.login("alice", "password1")
			c.send("Login:Sample", auth.Credentials{Username: "alice", Password: "password1"})
			c.expect(protocol.MsgAlreadyLoggedIn)

			c.send(chat.MsgWho, nil)
			var who chat.WhoList
			Expect(json.Unmarshal(c.expect(chat.MsgWhoList), &who)).To(Succeed())
			Expect(who.Usernames).To(Equal([]string{"alice"}))
		})

		It("registers, logs in and logs out", func() {
			c := s.dial()
			c.send("Register:Sample", auth.Credentials{Username: "newbie", Password: "password3"})
			c.expect(protocol.MsgRegisterOK)

			c.login("newbie", "password3")
			c.send(protocol.MsgLogout, nil)
			c.expect(protocol.MsgLoggedOut)
			Expect(s.protocol.Sessions().Len()).To(BeZero())

			c.login("newbie", "password3")
		})

		It("relays chat to every session and announces departures", func() {
			alice := s.dial()
			alice.login("alice", "password1")
			mod := s.dial()
			mod.login("mod", "password2")

			var joinedMsg chat.Joined
			Expect(json.Unmarshal(alice.expect(chat.MsgJoined), &joinedMsg)).To(Succeed())
			Expect(joinedMsg.Username).To(Equal("mod"))

			mod.send(chat.MsgEmote, chat.Utterance{Content: "waves"})
			for _, c := range []*client{alice, mod} {
				var said chat.Said
				Expect(json.Unmarshal(c.expect(chat.MsgEmoted), &said)).To(Succeed())
				Expect(said.Username).To(Equal("mod"))
			}

			Expect(mod.conn.Close()).To(Succeed())
			var leftMsg chat.Left
			Expect(json.Unmarshal(alice.expect(chat.MsgLeft), &leftMsg)).To(Succeed())
			Expect(leftMsg.Username).To(Equal("mod"))
			Eventually(s.protocol.Sessions().Len).Should(Equal(1))
		})
	})

	Context("with the ghost policy", func() {
		BeforeEach(func() {
			s = startStack(protocol.PolicyGhost)
			DeferCleanup(s.stop)
		})

		It("kicks the older session when the account logs in again", func() {
			first := s.dial()
			first.login("alice", "password1")

			second := s.dial()
			second.login("alice", "password1")

			var reason protocol.KickReason
			Expect(json.Unmarshal(first.expect(protocol.MsgKicked), &reason)).To(Succeed())
			Expect(reason.Kind).To(Equal(protocol.KickGhosted))

			Expect(s.protocol.Sessions().Len()).To(Equal(1))
			first.send(chat.MsgWho, nil)
			first.expect(protocol.MsgNotLoggedIn)
		})
	})

	Context("with the allow-all policy", func() {
		BeforeEach(func() {
			s = startStack(protocol.PolicyAllowAll)
			DeferCleanup(s.stop)
		})

		It("lets sessions for one account coexist and kicks them together", func() {
			first := s.dial()
			first.login("alice", "password1")
			second := s.dial()
			second.login("alice", "password1")

			Expect(s.protocol.Sessions().Len()).To(Equal(2))
			Expect(s.protocol.Sessions().AccountCount()).To(Equal(1))

			id, err := s.repo.GetByUsername(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			kicked, err := s.protocol.Kick(context.Background(), id.ID, protocol.Custom("bye"))
			Expect(err).NotTo(HaveOccurred())
			Expect(kicked).To(Equal(2))

			first.expect(protocol.MsgKicked)
			second.expect(protocol.MsgKicked)
			Expect(s.protocol.Sessions().Len()).To(BeZero())
		})
	})
})
