package main

import (
	"encoding/base64"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"
)

type relaySet struct {
	clients   []*sdk.RDClient
	listeners []net.Listener
}

// listenRelays registers name on every relay with one shared credential.
func listenRelays(urls []string, name, credKey string) (*relaySet, error) {
	cred := sdk.NewCredential()
	if credKey != "" {
		key, err := base64.StdEncoding.DecodeString(credKey)
		if err != nil {
			return nil, fmt.Errorf("decode cred key: %w", err)
		}
		cred, err = cryptoops.NewCredentialFromPrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("new credential from private key: %w", err)
		}
	}

	set := &relaySet{}
	for _, u := range splitURLs(urls) {
		client, err := sdk.NewClient(func(c *sdk.RDClientConfig) { c.BootstrapServers = []string{u} })
		if err != nil {
			log.Error().Err(err).Str("url", u).Msg("[oasis] new relay client failed")
			continue
		}
		set.clients = append(set.clients, client)
		ln, err := client.Listen(cred, name, []string{"http/1.1"})
		if err != nil {
			set.close()
			return nil, fmt.Errorf("listen (%s): %w", u, err)
		}
		set.listeners = append(set.listeners, ln)
		log.Info().Str("url", u).Str("name", name).Msg("[oasis] relay listener ready")
	}
	return set, nil
}

func (s *relaySet) close() {
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	for _, c := range s.clients {
		_ = c.Close()
	}
}
