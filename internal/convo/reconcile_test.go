package convo

import (
	"context"
	"fmt"
	"testing"

	"aarogya-bot/internal/payments"
	"aarogya-bot/internal/store"
)

func TestConfirmPendingPaymentMarksNewestPending(t *testing.T) {
	st := newFakeStore()
	st.user = &store.User{
		Phone: "+919876500020",
		Payments: []store.PaymentRecord{
			{LinkID: "plink_a", Status: store.PaymentPaid},
			{LinkID: "plink_b", Status: store.PaymentPending},
			{LinkID: "plink_c", Status: store.PaymentPending},
		},
	}
	gateway := &fakeGateway{paid: &payments.PaidInfo{PaymentID: "pay_100", Amount: 99}}
	engine := newEngine(st, newFakeSessions(), &fakeCompleter{}, gateway)

	got := engine.ConfirmPendingPayment(context.Background(), "+919876500020")
	if got != ConfirmationText("pay_100") {
		t.Fatalf("unexpected confirmation: %q", got)
	}

	if len(gateway.statusOf) != 1 || gateway.statusOf[0] != "plink_c" {
		t.Fatalf("expected newest pending link checked first, got %v", gateway.statusOf)
	}
	if len(st.markedLinkIDs) != 1 || st.markedLinkIDs[0] != "plink_c" {
		t.Fatalf("expected plink_c marked paid, got %v", st.markedLinkIDs)
	}
	if len(st.payments) != 1 || st.payments[0].Status != store.PaymentPaid || st.payments[0].PaymentID != "pay_100" {
		t.Fatalf("paid record not appended: %+v", st.payments)
	}
}

func TestConfirmPendingPaymentNotYetPaid(t *testing.T) {
	st := newFakeStore()
	st.user = &store.User{
		Phone:    "+919876500021",
		Payments: []store.PaymentRecord{{LinkID: "plink_x", Status: store.PaymentPending}},
	}
	gateway := &fakeGateway{paid: nil}
	engine := newEngine(st, newFakeSessions(), &fakeCompleter{}, gateway)

	if got := engine.ConfirmPendingPayment(context.Background(), "+919876500021"); got != "" {
		t.Fatalf("expected no confirmation, got %q", got)
	}
	if len(st.markedLinkIDs) != 0 || len(st.payments) != 0 {
		t.Fatal("store must be untouched when gateway reports unpaid")
	}
}

func TestConfirmPendingPaymentAlreadyTransitioned(t *testing.T) {
	st := newFakeStore()
	st.markResult = false
	st.user = &store.User{
		Phone:    "+919876500022",
		Payments: []store.PaymentRecord{{LinkID: "plink_y", Status: store.PaymentPending}},
	}
	gateway := &fakeGateway{paid: &payments.PaidInfo{PaymentID: "pay_dup", Amount: 99}}
	engine := newEngine(st, newFakeSessions(), &fakeCompleter{}, gateway)

	if got := engine.ConfirmPendingPayment(context.Background(), "+919876500022"); got != "" {
		t.Fatalf("expected empty result for already-confirmed payment, got %q", got)
	}
	if len(st.payments) != 0 {
		t.Fatalf("no paid record should be appended twice: %+v", st.payments)
	}
}

func TestConfirmPendingPaymentNoPendingSkipsGateway(t *testing.T) {
	st := newFakeStore()
	st.user = &store.User{
		Phone:    "+919876500023",
		Payments: []store.PaymentRecord{{LinkID: "plink_z", Status: store.PaymentPaid}},
	}
	gateway := &fakeGateway{}
	engine := newEngine(st, newFakeSessions(), &fakeCompleter{}, gateway)

	if got := engine.ConfirmPendingPayment(context.Background(), "+919876500023"); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
	if len(gateway.statusOf) != 0 {
		t.Fatalf("gateway must not be queried without a pending record: %v", gateway.statusOf)
	}
}

func TestConfirmPendingPaymentGatewayError(t *testing.T) {
	st := newFakeStore()
	st.user = &store.User{
		Phone:    "+919876500024",
		Payments: []store.PaymentRecord{{LinkID: "plink_e", Status: store.PaymentPending}},
	}
	gateway := &fakeGateway{paidErr: fmt.Errorf("rate limited")}
	engine := newEngine(st, newFakeSessions(), &fakeCompleter{}, gateway)

	if got := engine.ConfirmPendingPayment(context.Background(), "+919876500024"); got != "" {
		t.Fatalf("expected empty result on gateway error, got %q", got)
	}
	if len(st.markedLinkIDs) != 0 {
		t.Fatal("no transition should happen on gateway error")
	}
}
