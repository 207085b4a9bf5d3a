// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

//go:build integration

package plugin

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/driftmush/driftmush/internal/core"
	"github.com/driftmush/driftmush/internal/gateway"
	"github.com/driftmush/driftmush/internal/observability"
	"github.com/driftmush/driftmush/internal/plugin"
	"github.com/driftmush/driftmush/pkg/pluginapi"

	// In-tree plugins register their constructors at init time.
	_ "github.com/driftmush/driftmush/plugins/chat"
	_ "github.com/driftmush/driftmush/plugins/permission"
	_ "github.com/driftmush/driftmush/plugins/presence"
)

// writeManifest creates <dir>/<name>/plugin.yaml.
func writeManifest(dir, name, content string) {
	pluginDir := filepath.Join(dir, name)
	Expect(os.MkdirAll(pluginDir, 0o750)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(pluginDir, "plugin.yaml"), []byte(content), 0o600)).To(Succeed())
}

var _ = Describe("Plugin core startup", func() {
	var (
		ctx        context.Context
		cancel     context.CancelFunc
		pluginsDir string
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		pluginsDir = GinkgoT().TempDir()

		writeManifest(pluginsDir, "permission", `
name: permission
version: 1.0.0
entrypoint: permission
required: true
config:
  default-role: player
`)
		writeManifest(pluginsDir, "chat", `
name: chat
version: 1.0.0
entrypoint: chat
depends:
  - permission
events:
  - "chat.*"
`)
		writeManifest(pluginsDir, "presence", `
name: presence
version: 1.0.0
entrypoint: presence
config:
  greeting: "Welcome aboard!"
`)
	})

	AfterEach(func() {
		cancel()
	})

	It("constructs every plugin and seals the registry", func() {
		manager := plugin.NewManager(pluginsDir)
		registry, err := manager.Startup(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(manager.Ready()).To(BeTrue())
		Expect(registry.Sealed()).To(BeTrue())

		for _, name := range []string{"permission", "chat", "presence"} {
			state, ok := registry.State(name)
			Expect(ok).To(BeTrue(), name)
			Expect(state).To(Equal(plugin.StateReady), name)
		}

		chatHandle, ok := registry.Lookup("chat")
		Expect(ok).To(BeTrue())
		Expect(chatHandle.Implements(pluginapi.CapChatAPI)).To(BeTrue())
	})

	It("flows a chat message from one connection to the global stream", func() {
		manager := plugin.NewManager(pluginsDir)
		_, err := manager.Startup(ctx)
		Expect(err).NotTo(HaveOccurred())

		sessions := core.NewSessionManager()
		bcast := core.NewBroadcaster()
		sub := bcast.Subscribe(core.GlobalStream)
		connector := gateway.NewConnector(sessions, bcast, manager.Dispatcher(), nil)

		sess, ch := connector.Connect(ctx)

		// Presence greeted the connection.
		var welcome core.Event
		Eventually(ch.Outbound()).Should(Receive(&welcome))
		Expect(welcome.Type).To(Equal(core.EventType("system.welcome")))
		Expect(welcome.Payload["message"]).To(Equal("Welcome aboard!"))

		// Presence announced the join globally.
		var announce core.Event
		Eventually(sub).Should(Receive(&announce))
		Expect(announce.Type).To(Equal(core.EventType("presence.joined")))

		// Permission assigned the default role on join.
		role, ok := sess.Attr("role")
		Expect(ok).To(BeTrue())
		Expect(role).To(Equal("player"))

		// A chat message is permission-checked and broadcast.
		sess.SetName("rook")
		Expect(connector.Deliver(ctx, sess.ConnID(), "chat.say", pluginapi.Payload{"body": "hello"})).To(Succeed())

		var message core.Event
		Eventually(sub).Should(Receive(&message))
		Expect(message.Type).To(Equal(core.EventType("chat.message")))
		Expect(message.Payload["body"]).To(Equal(`rook says, "hello"`))

		Expect(connector.Disconnect(ctx, sess.ConnID())).To(Succeed())
	})

	It("degrades when an optional plugin is broken and keeps the rest", func() {
		writeManifest(pluginsDir, "ghost", `
name: ghost
version: 1.0.0
entrypoint: no-such-entrypoint
`)

		manager := plugin.NewManager(pluginsDir)
		registry, err := manager.Startup(ctx)
		Expect(err).NotTo(HaveOccurred())

		state, ok := registry.State("ghost")
		Expect(ok).To(BeTrue())
		Expect(state).To(Equal(plugin.StateFailed))

		state, _ = registry.State("chat")
		Expect(state).To(Equal(plugin.StateReady))
	})

	It("reports readiness over HTTP once startup completes", func() {
		manager := plugin.NewManager(pluginsDir)

		obs := observability.NewServer("127.0.0.1:0", manager.Ready)
		_, err := obs.Start()
		Expect(err).NotTo(HaveOccurred())
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			Expect(obs.Stop(stopCtx)).To(Succeed())
		}()

		probe := func() int {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet,
				"http://"+obs.Addr()+"/healthz/readiness", nil)
			Expect(reqErr).NotTo(HaveOccurred())
			resp, doErr := http.DefaultClient.Do(req)
			Expect(doErr).NotTo(HaveOccurred())
			defer resp.Body.Close()
			return resp.StatusCode
		}

		Expect(probe()).To(Equal(http.StatusServiceUnavailable))

		_, err = manager.Startup(ctx)
		Expect(err).NotTo(HaveOccurred())

		Eventually(probe).Should(Equal(http.StatusOK))
	})
})
