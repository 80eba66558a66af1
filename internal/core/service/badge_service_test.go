package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

func newBadgeSvc(t *testing.T) (*BadgeService, *stubRegistrationRepo, *stubStore, *stubQueue) {
	t.Helper()
	repo := seededRegistrations(t)
	store := newStubStore()
	queue := &stubQueue{}
	svc := NewBadgeService(repo, stubEncoder{}, store, "https://checkin.example.com/t/", zerolog.Nop())
	svc.UseQueue(queue)
	return svc, repo, store, queue
}

func readAsset(t *testing.T, svc *BadgeService, ticket string) []byte {
	t.Helper()
	rc, err := svc.Open(context.Background(), ticket)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestBadgeService_Generate_Idempotent(t *testing.T) {
	svc, repo, _, _ := newBadgeSvc(t)

	p1, err := svc.Generate(context.Background(), seededTicket)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	b1 := readAsset(t, svc, seededTicket)

	p2, err := svc.Generate(context.Background(), seededTicket)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	b2 := readAsset(t, svc, seededTicket)

	if p1 != p2 {
		t.Errorf("paths differ: %s vs %s", p1, p2)
	}
	if !bytes.Equal(b1, b2) {
		t.Errorf("asset content differs between runs")
	}
	if !bytes.Contains(b1, []byte("https://checkin.example.com/t/"+seededTicket)) {
		t.Errorf("content prefix not encoded: %q", b1)
	}

	reg, _ := repo.FindByTicketNumber(context.Background(), seededTicket)
	if reg.QRAssetPath != p1 {
		t.Errorf("expected qr_asset_path %s, got %s", p1, reg.QRAssetPath)
	}
}

func TestBadgeService_Generate_Failures(t *testing.T) {
	svc, _, store, _ := newBadgeSvc(t)

	if _, err := svc.Generate(context.Background(), "nope-ticket"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	store.err = errBoom
	if _, err := svc.Generate(context.Background(), seededTicket); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable when the store fails, got %v", err)
	}
}

func TestBadgeService_Open_Pending(t *testing.T) {
	svc, _, _, _ := newBadgeSvc(t)

	if _, err := svc.Open(context.Background(), seededTicket); !errors.Is(err, domain.ErrAssetPending) {
		t.Fatalf("expected ErrAssetPending, got %v", err)
	}
}

func TestBadgeService_EnqueueAndProcess(t *testing.T) {
	svc, _, _, queue := newBadgeSvc(t)

	if err := svc.Regenerate(context.Background(), seededTicket); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].TicketNumber != seededTicket || queue.jobs[0].Attempt != 1 {
		t.Fatalf("unexpected jobs: %+v", queue.jobs)
	}

	if err := svc.Process(context.Background(), queue.jobs[0]); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(readAsset(t, svc, seededTicket)) == 0 {
		t.Errorf("expected asset after processing")
	}

	if err := svc.Regenerate(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBadgeService_Enqueue_NoQueue(t *testing.T) {
	svc := NewBadgeService(newStubRegistrationRepo(), stubEncoder{}, newStubStore(), "", zerolog.Nop())

	if err := svc.Enqueue(context.Background(), seededTicket); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

var _ ports.BadgeService = (*BadgeService)(nil)
var _ ports.AssetJobHandler = (*BadgeService)(nil)
