package auth

import "testing"

func TestHashPasswordSalted(t *testing.T) {
	first, err := hashPassword("Sup3r!secret", 4)
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	second, err := hashPassword("Sup3r!secret", 4)
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	if first == second {
		t.Fatal("repeated hashes of one password must not collide")
	}
	if !checkPassword(first, "Sup3r!secret") || !checkPassword(second, "Sup3r!secret") {
		t.Fatal("both hashes must verify the original password")
	}
	if checkPassword(first, "Sup3r!secreT") {
		t.Fatal("wrong password verified")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := hashPassword("", 4); err != ErrEmptyPassword {
		t.Fatalf("empty password: got %v", err)
	}
	if checkPassword("", "anything") {
		t.Fatal("empty stored hash verified")
	}
}
