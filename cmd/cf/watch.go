package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/events"
	"github.com/alfredjeanlab/certflow/internal/model"
)

var watchCmd = &cobra.Command{
	Use:     "watch <id>",
	Short:   "Follow the events of a certificate",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")
		natsURL, _ := cmd.Flags().GetString("nats-url")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var lastID int64
		if err := queryAndPrint(ctx, id, &lastID); err != nil {
			return err
		}
		if once {
			return nil
		}
		if natsURL != "" {
			return watchNATS(ctx, natsURL, id, &lastID)
		}
		return watchPoll(ctx, interval, id, &lastID)
	},
}

// watchNATS re-queries whenever an event for id arrives on the bus.
func watchNATS(ctx context.Context, natsURL, id string, lastID *int64) error {
	// reconnectCh is signalled after a reconnect so events published while
	// disconnected are picked up.
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	debounce := time.NewTimer(0)
	debounce.Stop()
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if messageCertificate(msg) == id {
				debounce.Reset(100 * time.Millisecond)
			}
		case <-reconnectCh:
			debounce.Reset(0)
		case <-debounce.C:
			if err := queryAndPrint(ctx, id, lastID); err != nil {
				return err
			}
		}
	}
}

func watchPoll(ctx context.Context, interval time.Duration, id string, lastID *int64) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		if err := queryAndPrint(ctx, id, lastID); err != nil {
			return err
		}
	}
}

func queryAndPrint(ctx context.Context, id string, lastID *int64) error {
	evs, err := certClient.Events(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listing events of %s: %w", id, err)
	}
	fresh := newEvents(evs, lastID)
	if len(fresh) == 0 {
		return nil
	}
	if jsonOutput {
		for _, e := range fresh {
			data, _ := json.Marshal(e)
			fmt.Println(string(data))
		}
		return nil
	}
	printEvents(os.Stdout, fresh)
	return nil
}

// newEvents returns the events with an ID above *lastID and advances it.
func newEvents(evs []*model.Event, lastID *int64) []*model.Event {
	var fresh []*model.Event
	for _, e := range evs {
		if e.ID > *lastID {
			fresh = append(fresh, e)
		}
	}
	for _, e := range fresh {
		*lastID = max(*lastID, e.ID)
	}
	return fresh
}

// messageCertificate names the certificate a bus message belongs to. Older
// publishers send no header, so the payload is inspected as a fallback.
func messageCertificate(msg events.Message) string {
	if msg.CertificateID != "" {
		return msg.CertificateID
	}
	return eventCertificateID(msg.Data)
}

// eventCertificateID extracts the certificate ID from an event payload.
func eventCertificateID(payload []byte) string {
	var p struct {
		CertificateID string `json:"certificate_id"`
		Certificate   *struct {
			ID string `json:"id"`
		} `json:"certificate"`
		Dispatch *struct {
			CertificateID string `json:"certificate_id"`
		} `json:"dispatch"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	switch {
	case p.CertificateID != "":
		return p.CertificateID
	case p.Certificate != nil:
		return p.Certificate.ID
	case p.Dispatch != nil:
		return p.Dispatch.CertificateID
	}
	return ""
}

func init() {
	watchCmd.Flags().Duration("interval", 2*time.Second, "polling interval without NATS")
	watchCmd.Flags().Bool("once", false, "print current events and exit")
	watchCmd.Flags().String("nats-url", os.Getenv("CERTFLOW_NATS_URL"), "NATS URL for push updates")
}
