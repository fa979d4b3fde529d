package users

import "github.com/pkg/errors"

// TestUsers returns the built-in development user list. These mirror the
// classic alice/bob sample identities and exist only for demo deployments;
// a real deployment would plug a credential store into Repo instead.
func TestUsers() ([]*User, error) {
	aliceHash, err := HashPassword("alice")
	if err != nil {
		return nil, errors.Wrap(err, "[TestUsers] hashing alice password")
	}
	bobHash, err := HashPassword("bob")
	if err != nil {
		return nil, errors.Wrap(err, "[TestUsers] hashing bob password")
	}

	return []*User{
		{
			Subject:       "818727",
			Username:      "alice",
			PasswordHash:  aliceHash,
			FirstName:     "Alice",
			LastName:      "Smith",
			Email:         "AliceSmith@email.com",
			EmailVerified: true,
			Website:       "http://alice.com",
			Address:       "One Hacker Way, Heidelberg, 69118, Germany",
			Roles:         []string{"admin"},
		},
		{
			Subject:       "88421113",
			Username:      "bob",
			PasswordHash:  bobHash,
			FirstName:     "Bob",
			LastName:      "Smith",
			Email:         "BobSmith@email.com",
			EmailVerified: true,
			Website:       "http://bob.com",
			Address:       "One Hacker Way, Heidelberg, 69118, Germany",
			Roles:         []string{"user"},
		},
	}, nil
}

// SeedTestUsers loads the development users into a repo.
func SeedTestUsers(repo Repo) error {
	testUsers, err := TestUsers()
	if err != nil {
		return err
	}
	for _, u := range testUsers {
		if err := repo.Upsert(u); err != nil {
			return errors.Wrapf(err, "[SeedTestUsers] upserting %s", u.Username)
		}
	}
	return nil
}
