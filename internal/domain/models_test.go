package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
)

func TestNewMessage(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.FixedZone("PHT", 8*3600))

	m, err := NewMessage("alice", "bob", "hi", nil, now)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, time.UTC, m.CreatedAt.Location())
	assert.False(t, m.Read)
	assert.Equal(t, "hi", m.Preview())

	m, err = NewMessage("alice", "bob", "", []string{" ", "https://cdn/a.jpg"}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{" ", "https://cdn/a.jpg"}, m.Attachments)
	assert.Equal(t, AttachmentPreview, m.Preview())
}

func TestNewMessage_ContentKeptAsIs(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		attachments []string
		preview     string
	}{
		{"whitespace body", "   ", nil, "   "},
		{"whitespace attachment", "", []string{" "}, AttachmentPreview},
		{"padded body with attachment", " hi ", []string{"https://cdn/a.jpg"}, " hi "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := NewMessage("alice", "bob", tc.body, tc.attachments, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tc.body, m.Body)
			assert.Equal(t, len(tc.attachments), len(m.Attachments))
			for i := range tc.attachments {
				assert.Equal(t, tc.attachments[i], m.Attachments[i])
			}
			assert.Equal(t, tc.preview, m.Preview())
		})
	}
}

func TestNewMessage_Invalid(t *testing.T) {
	cases := []struct {
		sender, recipient, body string
		attachments             []string
	}{
		{"", "bob", "hi", nil},
		{"alice", "", "hi", nil},
		{"alice", "bob", "", nil},
		{"alice", "bob", "", []string{}},
	}
	for _, tc := range cases {
		_, err := NewMessage(tc.sender, tc.recipient, tc.body, tc.attachments, time.Now())
		assert.ErrorIs(t, err, apperr.ErrInvalidMessage)
	}
}

func TestPairKey(t *testing.T) {
	k1, p1 := PairKey("zed", "amy")
	k2, p2 := PairKey("amy", "zed")
	assert.Equal(t, k1, k2)
	assert.Equal(t, "amy:zed", k1)
	assert.Equal(t, []string{"amy", "zed"}, p1)
	assert.Equal(t, p1, p2)
}

func TestBookingParticipants(t *testing.T) {
	assert.Equal(t, []string{"o", "c"}, (&Booking{OwnerID: "o", ClinicID: "c"}).Participants())
	assert.Equal(t, []string{"o"}, (&Booking{OwnerID: "o", ClinicID: "o"}).Participants())
	assert.Empty(t, (&Booking{}).Participants())
}
