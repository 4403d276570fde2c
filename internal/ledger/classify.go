package ledger

import (
	"strings"

	"github.com/jbrukh/bayesian"
)

// CategoryOther is assigned when no category was extracted and the merchant
// name gives the classifier nothing to work with.
const CategoryOther = "Other"

// categorySeeds are the terms that characterize each spending category.
var categorySeeds = map[string][]string{
	"Groceries":  {"grocery", "groceries", "mart", "supermarket", "basket", "market", "foods"},
	"Medical":    {"hospital", "medical", "pharmacy", "clinic", "drug", "health", "dental"},
	"Restaurant": {"hotel", "restaurant", "cafe", "food", "diner", "pizza", "coffee", "bar", "grill"},
	"Travel":     {"uber", "ola", "lyft", "flight", "airline", "rail", "travel", "taxi", "airways"},
	"Utilities":  {"electricity", "electric", "water", "gas", "bill", "telecom", "internet", "energy"},
}

// Classifier maps merchant names to spending categories using a TF-IDF naive
// Bayes model seeded with the category term lists.
type Classifier struct {
	cl      *bayesian.Classifier
	classes []bayesian.Class
	known   map[string]bool
}

// NewClassifier builds and trains a classifier.
func NewClassifier() *Classifier {
	classes := make([]bayesian.Class, 0, len(categorySeeds))
	for name := range categorySeeds {
		classes = append(classes, bayesian.Class(name))
	}

	cl := bayesian.NewClassifierTfIdf(classes...)
	known := make(map[string]bool)
	for name, seeds := range categorySeeds {
		cl.Learn(seeds, bayesian.Class(name))
		for _, term := range seeds {
			known[term] = true
		}
	}
	cl.ConvertTermsFreqToTfIdf()

	return &Classifier{cl: cl, classes: classes, known: known}
}

// Classify returns the category for a merchant name, or CategoryOther when
// none of the merchant's terms were ever seen in training. The bare Bayes
// scores are uninformative on fully unseen input, so the known-term guard
// decides instead.
func (c *Classifier) Classify(merchant string) string {
	if merchant == "" {
		return CategoryOther
	}

	terms := strings.Fields(strings.ToLower(merchant))
	anyKnown := false
	for _, term := range terms {
		if c.known[strings.Trim(term, ".,&'-")] {
			anyKnown = true
			break
		}
	}
	if !anyKnown {
		return CategoryOther
	}

	_, inx, _ := c.cl.LogScores(terms)
	return string(c.classes[inx])
}
