package fluent

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
)

// Tag values accepted in explicit state-fluent declarations.
const (
	TagBinary = "binary"
	TagEnum   = "enum"
)

// Classifier decides, for every declared state fluent, whether it is a
// binary factor or a member of an enumerated one-hot group, and builds
// the schema. Explicit tags always win; untagged fluents are inferred
// from the choice-group provenance of their argument values. Genuinely
// ambiguous declarations are rejected, never guessed.
type Classifier struct {
	decls  domain.DeclarationStore
	logger *zap.Logger
}

func NewClassifier(decls domain.DeclarationStore, logger *zap.Logger) *Classifier {
	return &Classifier{decls: decls, logger: logger}
}

type entryKind int

const (
	kindBinary entryKind = iota
	kindEnum
)

// entry is one classified fluent before dispatch. mutableIdx is the
// 0-based position of the mutable argument, or -1 when the whole term
// is the group member.
type entry struct {
	term       domain.Term
	kind       entryKind
	mutableIdx int
}

// Classify builds the state schema from the declaration store. All
// static declaration problems (malformed tags, ambiguous untagged
// fluents, undersized groups) are collected and returned together in a
// single ValidationError instead of failing one at a time. The returned
// warnings are informational and never block the build.
func (c *Classifier) Classify() (*domain.Schema, []string, error) {
	explicit := c.decls.Assignments(domain.KindStateFluent)
	implicit := c.decls.Declarations(domain.KindStateFluent)
	vocab := c.decls.ADSVocabulary()

	var issues []error
	var warnings []string

	registry := make(map[domain.Term]entry)

	// explicit declarations first, they take precedence
	explicitTerms := make([]domain.Term, 0, len(explicit))
	for term := range explicit {
		explicitTerms = append(explicitTerms, term)
	}
	domain.SortTerms(explicitTerms)
	for _, term := range explicitTerms {
		e, err := parseTag(term, explicit[term])
		if err != nil {
			issues = append(issues, err)
			continue
		}
		registry[term] = e
	}

	warnings = append(warnings, c.crossDependencyWarnings(explicit, vocab)...)

	// untagged declarations, grouped by signature for inference
	type signature struct {
		functor string
		arity   int
	}
	bySignature := make(map[signature][]domain.Term)
	for _, term := range implicit {
		if _, dup := registry[term]; dup {
			w := fmt.Sprintf("fluent %s is declared both implicitly and explicitly; the explicit declaration takes precedence", term)
			warnings = append(warnings, w)
			c.logger.Warn("duplicate fluent declaration", zap.String("term", string(term)))
			continue
		}
		sig := signature{functor: term.Functor(), arity: term.Arity()}
		bySignature[sig] = append(bySignature[sig], term)
	}

	signatures := make([]signature, 0, len(bySignature))
	for sig := range bySignature {
		signatures = append(signatures, sig)
	}
	sort.Slice(signatures, func(i, j int) bool {
		if signatures[i].functor != signatures[j].functor {
			return signatures[i].functor < signatures[j].functor
		}
		return signatures[i].arity < signatures[j].arity
	})

	for _, sig := range signatures {
		terms := bySignature[sig]
		kind, err := inferKind(terms, vocab)
		if err != nil {
			issues = append(issues, err)
			continue
		}
		for _, term := range terms {
			registry[term] = entry{term: term, kind: kind, mutableIdx: -1}
		}
	}

	schema := domain.NewSchema()
	groups := make(map[string][]domain.Term)

	keys := make([]domain.Term, 0, len(registry))
	for term := range registry {
		keys = append(keys, term)
	}
	domain.SortTerms(keys)

	for _, term := range keys {
		e := registry[term]
		if e.kind == kindBinary {
			if err := schema.AddBinary(term); err != nil {
				issues = append(issues, err)
			}
			continue
		}
		key := groupKey(term, e.mutableIdx)
		groups[key] = append(groups[key], term)
	}

	groupMutable := make(map[string]int)
	for _, term := range keys {
		e := registry[term]
		if e.kind == kindEnum {
			groupMutable[groupKey(term, e.mutableIdx)] = e.mutableIdx
		}
	}

	groupKeys := make([]string, 0, len(groups))
	for key := range groups {
		groupKeys = append(groupKeys, key)
	}
	sort.Strings(groupKeys)

	for _, key := range groupKeys {
		members := domain.SortTerms(groups[key])
		if err := checkCardinality(key, members, groupMutable[key]); err != nil {
			issues = append(issues, err)
			continue
		}
		if err := schema.AddGroup(key, members); err != nil {
			issues = append(issues, err)
		}
	}

	if len(issues) > 0 {
		return nil, warnings, &domain.ValidationError{Issues: issues}
	}

	schema.Freeze()
	c.logger.Info("state schema built",
		zap.Int("factors", schema.Len()),
		zap.Int("total_states", schema.TotalStates()),
		zap.Int("warnings", len(warnings)))
	return schema, warnings, nil
}

// parseTag resolves an explicit tag term to a classification entry.
func parseTag(term, tag domain.Term) (entry, error) {
	switch string(tag) {
	case TagBinary:
		return entry{term: term, kind: kindBinary, mutableIdx: -1}, nil
	case TagEnum:
		// all groundings of the functor form a single group
		return entry{term: term, kind: kindEnum, mutableIdx: -1}, nil
	}

	if tag.Functor() == TagEnum && tag.Arity() == 1 {
		raw := tag.Args()[0]
		n, err := strconv.Atoi(raw)
		if err != nil {
			return entry{}, &domain.DeclarationError{
				Term: term, Tag: string(tag),
				Reason: fmt.Sprintf("enum index %q is not an integer", raw),
			}
		}
		if n < 1 || n > term.Arity() {
			return entry{}, &domain.DeclarationError{
				Term: term, Tag: string(tag),
				Reason: fmt.Sprintf("enum(%d) out of range, valid positions are 1 to %d", n, term.Arity()),
			}
		}
		return entry{term: term, kind: kindEnum, mutableIdx: n - 1}, nil
	}

	return entry{}, &domain.DeclarationError{
		Term: term, Tag: string(tag),
		Reason: "unknown tag, valid tags are binary, enum, enum(N)",
	}
}

// inferKind classifies one untagged signature from the provenance of
// its argument values. A position is stochastic when every value seen
// there shares at least one originating choice group.
func inferKind(terms []domain.Term, vocab map[domain.Term]domain.GroupSet) (entryKind, error) {
	if len(terms) == 0 {
		return kindBinary, nil
	}
	sample := terms[0]
	arity := sample.Arity()
	if arity == 0 {
		return kindBinary, nil
	}

	stochastic := -1
	for pos := 0; pos < arity; pos++ {
		values := make(map[string]struct{})
		for _, t := range terms {
			args := t.Args()
			if pos < len(args) {
				values[args[pos]] = struct{}{}
			}
		}
		if sharesGroup(values, vocab) {
			stochastic = pos
			break
		}
	}

	if stochastic < 0 {
		return kindBinary, nil
	}
	if arity == 1 {
		return kindEnum, nil
	}
	return 0, &domain.AmbiguityError{
		Functor:  sample.Functor(),
		Arity:    arity,
		Position: stochastic + 1,
	}
}

func sharesGroup(values map[string]struct{}, vocab map[domain.Term]domain.GroupSet) bool {
	var common domain.GroupSet
	first := true
	for v := range values {
		groups := vocab[domain.Term(v)]
		if len(groups) == 0 {
			return false
		}
		if first {
			common = make(domain.GroupSet, len(groups))
			for id := range groups {
				common[id] = struct{}{}
			}
			first = false
			continue
		}
		common = common.Intersect(groups)
		if len(common) == 0 {
			return false
		}
	}
	return len(common) > 0
}

// groupKey derives the enumerated group a term belongs to: the functor
// alone when the whole term is the member, or the functor applied to
// the static arguments when one position is mutable.
func groupKey(term domain.Term, mutableIdx int) string {
	if mutableIdx < 0 {
		return term.Functor()
	}
	var static []string
	for i, arg := range term.Args() {
		if i != mutableIdx {
			static = append(static, arg)
		}
	}
	if len(static) == 0 {
		return term.Functor()
	}
	return fmt.Sprintf("%s(%s)", term.Functor(), strings.Join(static, ","))
}

// checkCardinality validates the mutable-argument domain of a group:
// fewer than two distinct options makes the group a constant.
func checkCardinality(key string, members []domain.Term, mutableIdx int) error {
	values := make(map[string]struct{})
	for _, t := range members {
		if mutableIdx < 0 {
			values[string(t)] = struct{}{}
			continue
		}
		args := t.Args()
		if mutableIdx < len(args) {
			values[args[mutableIdx]] = struct{}{}
		}
	}
	if len(values) < 2 {
		return &domain.CardinalityError{GroupKey: key, Options: members}
	}
	return nil
}

func (c *Classifier) crossDependencyWarnings(explicit map[domain.Term]domain.Term, vocab map[domain.Term]domain.GroupSet) []string {
	var warnings []string
	terms := make([]domain.Term, 0, len(explicit))
	for term := range explicit {
		terms = append(terms, term)
	}
	domain.SortTerms(terms)

	for _, term := range terms {
		tag := explicit[term]
		if tag.Functor() != TagEnum || tag.Arity() != 1 {
			continue
		}
		n, err := strconv.Atoi(tag.Args()[0])
		if err != nil {
			continue
		}
		for i, arg := range term.Args() {
			if i == n-1 {
				continue
			}
			if _, ok := vocab[domain.Term(arg)]; ok {
				w := fmt.Sprintf("fluent %s declared as enum(%d), but argument %d (%s) also appears in choice-group vocabulary; the model may have unmodeled cross-dependencies", term, n, i+1, arg)
				warnings = append(warnings, w)
				c.logger.Warn("possible unmodeled cross-dependency",
					zap.String("term", string(term)),
					zap.Int("position", i+1))
				break
			}
		}
	}
	return warnings
}
