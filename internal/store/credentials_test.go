// ABOUTME: Tests for passkey credential persistence
// ABOUTME: Covers lookup by credential ID, sign count updates, and last-credential refusal

package store

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestCreateAndGetCredential(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	user := makeUser(t, s, "alice", true)
	cred := makeCredential(t, s, user.ID, []byte("cred-id-1"))

	got, err := s.GetCredentialByCredentialID(ctx, []byte("cred-id-1"))
	if err != nil {
		t.Fatalf("GetCredentialByCredentialID failed: %v", err)
	}
	if got.ID != cred.ID {
		t.Errorf("ID = %q, want %q", got.ID, cred.ID)
	}
	if !bytes.Equal(got.PublicKey, cred.PublicKey) {
		t.Error("PublicKey mismatch")
	}
	if got.DeviceName != "test device" {
		t.Errorf("DeviceName = %q, want %q", got.DeviceName, "test device")
	}
}

func TestCreateCredential_Duplicate(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	user := makeUser(t, s, "alice", true)
	makeCredential(t, s, user.ID, []byte("cred-id-1"))

	dup := &Credential{
		ID:           "other-row-id",
		UserID:       user.ID,
		CredentialID: []byte("cred-id-1"),
		PublicKey:    []byte("pk"),
	}
	err := s.CreateCredential(ctx, dup)
	if !errors.Is(err, ErrCredentialExists) {
		t.Errorf("CreateCredential error = %v, want ErrCredentialExists", err)
	}
}

func TestGetCredentialsByUser(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	alice := makeUser(t, s, "alice", true)
	bob := makeUser(t, s, "bob", false)
	makeCredential(t, s, alice.ID, []byte("cred-a1"))
	makeCredential(t, s, alice.ID, []byte("cred-a2"))
	makeCredential(t, s, bob.ID, []byte("cred-b1"))

	creds, err := s.GetCredentialsByUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetCredentialsByUser failed: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("got %d credentials, want 2", len(creds))
	}
	for _, c := range creds {
		if c.UserID != alice.ID {
			t.Errorf("credential %s belongs to %q, want %q", c.ID, c.UserID, alice.ID)
		}
	}
}

func TestUpdateCredentialSignCount(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	user := makeUser(t, s, "alice", true)
	cred := makeCredential(t, s, user.ID, []byte("cred-id-1"))

	if err := s.UpdateCredentialSignCount(ctx, cred.ID, 42); err != nil {
		t.Fatalf("UpdateCredentialSignCount failed: %v", err)
	}

	got, err := s.GetCredentialByCredentialID(ctx, []byte("cred-id-1"))
	if err != nil {
		t.Fatalf("GetCredentialByCredentialID failed: %v", err)
	}
	if got.SignCount != 42 {
		t.Errorf("SignCount = %d, want 42", got.SignCount)
	}

	err = s.UpdateCredentialSignCount(ctx, "missing", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateCredentialSignCount error = %v, want ErrNotFound", err)
	}
}

func TestDeleteCredential_LastCredential(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	user := makeUser(t, s, "alice", true)
	only := makeCredential(t, s, user.ID, []byte("cred-1"))

	err := s.DeleteCredential(ctx, user.ID, only.ID)
	if !errors.Is(err, ErrLastCredential) {
		t.Fatalf("DeleteCredential error = %v, want ErrLastCredential", err)
	}

	// With a second credential either one can be deleted
	second := makeCredential(t, s, user.ID, []byte("cred-2"))
	if err := s.DeleteCredential(ctx, user.ID, only.ID); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}

	// Back to one credential: refusal applies again
	err = s.DeleteCredential(ctx, user.ID, second.ID)
	if !errors.Is(err, ErrLastCredential) {
		t.Errorf("DeleteCredential error = %v, want ErrLastCredential", err)
	}
}

func TestDeleteCredential_CrossUser(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	alice := makeUser(t, s, "alice", true)
	bob := makeUser(t, s, "bob", false)
	makeCredential(t, s, alice.ID, []byte("cred-a1"))
	makeCredential(t, s, alice.ID, []byte("cred-a2"))
	bobCred := makeCredential(t, s, bob.ID, []byte("cred-b1"))
	makeCredential(t, s, bob.ID, []byte("cred-b2"))

	// alice cannot delete bob's credential even though she has spares
	err := s.DeleteCredential(ctx, alice.ID, bobCred.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteCredential error = %v, want ErrNotFound", err)
	}

	// bob's credential is untouched
	if _, err := s.GetCredentialByCredentialID(ctx, []byte("cred-b1")); err != nil {
		t.Errorf("bob's credential disappeared: %v", err)
	}
}
