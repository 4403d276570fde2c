package ledger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classifier", func() {
	var classifier *Classifier

	BeforeEach(func() {
		classifier = NewClassifier()
	})

	DescribeTable("classifying merchants",
		func(merchant, expected string) {
			Expect(classifier.Classify(merchant)).To(Equal(expected))
		},
		Entry("supermarket", "Green Basket Supermarket", "Groceries"),
		Entry("pharmacy", "CVS Pharmacy", "Medical"),
		Entry("cafe", "Cafe Sol", "Restaurant"),
		Entry("rideshare", "Uber Trip", "Travel"),
		Entry("utility", "City Electric Supply", "Utilities"),
		Entry("unknown merchant", "Xylophone Emporium", CategoryOther),
		Entry("empty merchant", "", CategoryOther),
	)
})
