package matcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/models"
)

type fakeGenerator struct {
	mu           sync.Mutex
	keywordResp  string
	keywordErr   error
	reasonResp   string
	reasonErr    error
	keywordCalls int
	reasonCalls  int
}

func (f *fakeGenerator) GenerateCompletion(_ context.Context, prompt string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.HasPrefix(prompt, "Extract a comma-separated list of keywords") {
		f.keywordCalls++
		return f.keywordResp, f.keywordErr
	}
	f.reasonCalls++
	return f.reasonResp, f.reasonErr
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keywordCalls + f.reasonCalls
}

type fakeSource struct {
	grants []models.Grant
	err    error
	calls  int
}

func (s *fakeSource) AllGrants(context.Context) ([]models.Grant, error) {
	s.calls++
	return s.grants, s.err
}

func grant(title, org, desc string, tags ...string) models.Grant {
	return models.Grant{
		ID:           uuid.New(),
		Title:        title,
		Organization: org,
		Description:  desc,
		Tags:         tags,
	}
}

func newMatcher(t *testing.T, src GrantSource, gen ai.Generator, opts ...Option) *Matcher {
	t.Helper()
	m, err := New(src, gen, opts...)
	require.NoError(t, err)
	return m
}

func TestMatch_WomenLedFintechScenario(t *testing.T) {
	src := &fakeSource{grants: []models.Grant{
		grant("Women in Tech Fund", "Tech Sisters", "Supports female founders", "gender", "fintech"),
		grant("Climate Grant", "Green Org", "For environmental projects", "climate"),
	}}
	gen := &fakeGenerator{
		keywordResp: "women-led, fintech, startup",
		reasonResp:  "This fund backs female founders building fintech products. It also offers mentoring. Apply early.",
	}

	resp, err := newMatcher(t, src, gen).Match(context.Background(), "I run a women-led fintech startup")
	require.NoError(t, err)
	require.Len(t, resp.Grants, 1)
	assert.Equal(t, "Women in Tech Fund", resp.Grants[0].Title)
	assert.Nil(t, resp.Grants[0].URL)
	assert.Equal(t,
		"Top matching grants with reasons:\n- Women in Tech Fund (Tech Sisters): This fund backs female founders building fintech products. It also offers mentoring.",
		resp.Message)
	assert.Equal(t, 1, gen.keywordCalls)
	assert.Equal(t, 1, gen.reasonCalls)
}

func TestMatch_EmptyQueryMakesNoCalls(t *testing.T) {
	src := &fakeSource{}
	gen := &fakeGenerator{}

	for _, q := range []string{"", "   \n\t"} {
		resp, err := newMatcher(t, src, gen).Match(context.Background(), q)
		require.ErrorIs(t, err, ErrEmptyQuery)
		assert.Nil(t, resp)
	}
	assert.Zero(t, src.calls)
	assert.Zero(t, gen.calls())
}

func TestMatch_MissingGenerator(t *testing.T) {
	src := &fakeSource{}
	_, err := newMatcher(t, src, nil).Match(context.Background(), "climate")
	require.ErrorIs(t, err, ai.ErrMissingAPIKey)
	assert.Zero(t, src.calls)
}

func TestMatch_GrantSourceFailureIsFatal(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	gen := &fakeGenerator{keywordResp: "climate"}

	_, err := newMatcher(t, src, gen).Match(context.Background(), "climate project")
	require.ErrorIs(t, err, ErrGrantSource)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMatch_ExtractionFailureWithoutOverride(t *testing.T) {
	src := &fakeSource{grants: []models.Grant{
		grant("Climate Grant", "Green Org", "For environmental projects", "climate"),
	}}
	gen := &fakeGenerator{keywordErr: errors.New("timeout")}

	resp, err := newMatcher(t, src, gen).Match(context.Background(), "climate adaptation in coastal towns")
	require.NoError(t, err)
	assert.Equal(t, NoMatchesMessage, resp.Message)
	assert.Empty(t, resp.Grants)
	assert.NotNil(t, resp.Grants)
	assert.Zero(t, gen.reasonCalls)
}

func TestMatch_PlaceholderReasonFallsBack(t *testing.T) {
	src := &fakeSource{grants: []models.Grant{
		grant("DAO Builders Grant", "Chain Fund", "Funding for decentralized governance tooling. Rolling deadline.", "web3", "dao"),
	}}
	gen := &fakeGenerator{keywordResp: "dao, governance", reasonResp: "[insert explanation]"}

	resp, err := newMatcher(t, src, gen).Match(context.Background(), "We build DAO governance tools")
	require.NoError(t, err)
	require.Len(t, resp.Grants, 1)

	reason := resp.Grants[0].Reason
	assert.NotEmpty(t, reason)
	assert.NotContains(t, reason, "[insert")
	assert.True(t, strings.HasPrefix(reason, "Your project matches because it focuses on: dao, governance"), reason)
	assert.Contains(t, reason, "Funding for decentralized governance tooling.")
}

func TestMatch_ReasonErrorFallsBack(t *testing.T) {
	src := &fakeSource{grants: []models.Grant{
		grant("Climate Grant", "Green Org", "For environmental projects", "climate"),
	}}
	gen := &fakeGenerator{keywordResp: "climate", reasonErr: errors.New("503")}

	resp, err := newMatcher(t, src, gen).Match(context.Background(), "climate startup")
	require.NoError(t, err)
	require.Len(t, resp.Grants, 1)
	assert.Equal(t, "Your project matches because it focuses on: climate. For environmental projects", resp.Grants[0].Reason)
}

func TestMatch_PlaceholderInDescriptionKeepsGrant(t *testing.T) {
	src := &fakeSource{grants: []models.Grant{
		grant("Climate Grant", "Green Org", "Apply via {{portal}} today.", "climate"),
	}}
	gen := &fakeGenerator{keywordResp: "climate", reasonResp: "[insert explanation]"}

	resp, err := newMatcher(t, src, gen).Match(context.Background(), "climate startup")
	require.NoError(t, err)
	require.Len(t, resp.Grants, 1)

	reason := resp.Grants[0].Reason
	assert.True(t, ValidReason(reason), reason)
	assert.NotContains(t, reason, "{{")
	assert.True(t, strings.HasPrefix(reason, "Your project matches because it focuses on: climate"), reason)
}

func TestMatch_TopKAndOrder(t *testing.T) {
	src := &fakeSource{grants: []models.Grant{
		grant("Generic Tech", "A", "technology projects", "tech"),
		grant("Web3 Women", "B", "women building on blockchain", "web3", "women"),
		grant("Chain Only", "C", "blockchain infrastructure", "web3"),
	}}
	gen := &fakeGenerator{keywordResp: "tech", reasonResp: "A detailed and specific reason."}

	resp, err := newMatcher(t, src, gen).Match(context.Background(), "women founders in web3 and blockchain tech")
	require.NoError(t, err)
	// gender override fires first: only "Web3 Women" carries a gender term
	require.Len(t, resp.Grants, 1)
	assert.Equal(t, "Web3 Women", resp.Grants[0].Title)

	resp, err = newMatcher(t, src, gen, WithTopK(2)).Match(context.Background(), "a blockchain tech project")
	require.NoError(t, err)
	require.Len(t, resp.Grants, 2)
	assert.Equal(t, "Web3 Women", resp.Grants[0].Title)
	assert.Equal(t, "Chain Only", resp.Grants[1].Title)
}

func TestMatch_Idempotent(t *testing.T) {
	src := &fakeSource{grants: []models.Grant{
		grant("A", "Org", "blockchain for farmers", "web3"),
		grant("B", "Org", "dao tooling", "dao"),
		grant("C", "Org", "nft marketplaces", "nft"),
	}}
	gen := &fakeGenerator{keywordResp: "farmers", reasonResp: "[your reason]"}
	m := newMatcher(t, src, gen)

	first, err := m.Match(context.Background(), "decentralized blockchain for farmers")
	require.NoError(t, err)
	second, err := m.Match(context.Background(), "decentralized blockchain for farmers")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMatch_OverrideProperties(t *testing.T) {
	grants := []models.Grant{
		grant("Equality Fund", "O", "gender equality programmes", "social"),
		grant("DeFi Lab", "O", "crypto and defi research", "finance"),
		grant("Farm Fund", "O", "agriculture", "food"),
		grant("Token Studio", "O", "token design", "web3"),
		grant("Empowerment Prize", "O", "economic empowerment", "women"),
	}
	gen := &fakeGenerator{keywordResp: "agriculture, food", reasonResp: "Relevant because of the shared focus."}

	genderTerms := []string{"women", "female", "gender", "empowerment", "equality"}
	web3Terms := []string{"web3", "blockchain", "dao", "decentralized", "nft", "token", "defi", "crypto"}

	cases := []struct {
		query string
		terms []string
	}{
		{"FEMALE farmers cooperative", genderTerms},
		{"Gender-lens agriculture", genderTerms},
		{"NFT tickets for farms", web3Terms},
		{"a Decentralized food market", web3Terms},
	}
	for _, tc := range cases {
		resp, err := newMatcher(t, &fakeSource{grants: grants}, gen, WithTopK(5)).Match(context.Background(), tc.query)
		require.NoError(t, err)
		require.NotEmpty(t, resp.Grants, tc.query)
		for _, r := range resp.Grants {
			var text string
			for _, g := range grants {
				if g.ID == r.ID {
					text = g.SearchableText()
				}
			}
			assert.True(t, containsAny(text, tc.terms), "query %q returned %q", tc.query, r.Title)
		}
	}
}
