package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/receiptscan/receipt-scanner/internal/parsing"
	"github.com/receiptscan/receipt-scanner/internal/pipeline"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newRecord := func(id string) *Record {
		total := 6.49
		return &Record{
			ID:          id,
			Filename:    id + "_test.jpg",
			ContentType: "image/jpeg",
			Scan: &pipeline.ScanResult{
				Receipt: &parsing.ParsedReceipt{
					Items: []parsing.ExtractedItem{
						{ID: "item-1", Name: "Milk", Price: &total, Quantity: 1, Confidence: 0.9, LineNumber: 1},
					},
					Total: &total,
				},
			},
			ReviewStatus: ReviewPending,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
	}

	Describe("SaveRecord", func() {
		It("round-trips a record with its full scan payload", func() {
			Expect(db.SaveRecord(newRecord("test-id"))).NotTo(HaveOccurred())

			saved, err := db.GetRecord("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ID).To(Equal("test-id"))
			Expect(saved.ReviewStatus).To(Equal(ReviewPending))
			Expect(saved.Scan).NotTo(BeNil())
			Expect(saved.Scan.Receipt.Items).To(HaveLen(1))
			Expect(*saved.Scan.Receipt.Total).To(Equal(6.49))
		})

		It("overwrites an existing record", func() {
			record := newRecord("test-id")
			Expect(db.SaveRecord(record)).NotTo(HaveOccurred())

			record.ReviewStatus = ReviewApproved
			Expect(db.SaveRecord(record)).NotTo(HaveOccurred())

			saved, err := db.GetRecord("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ReviewStatus).To(Equal(ReviewApproved))
		})
	})

	Describe("GetRecord", func() {
		When("the record does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetRecord("nonexistent")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListRecords", func() {
		When("records exist", func() {
			BeforeEach(func() {
				Expect(db.SaveRecord(newRecord("id1"))).NotTo(HaveOccurred())
				Expect(db.SaveRecord(newRecord("id2"))).NotTo(HaveOccurred())
			})

			It("returns all of them", func() {
				records, err := db.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
			})
		})

		When("no records exist", func() {
			It("returns an empty list", func() {
				records, err := db.ListRecords()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})
	})

	Describe("DeleteRecord", func() {
		When("the record exists", func() {
			BeforeEach(func() {
				Expect(db.SaveRecord(newRecord("test-id"))).NotTo(HaveOccurred())
			})

			It("removes it", func() {
				Expect(db.DeleteRecord("test-id")).NotTo(HaveOccurred())
				_, err := db.GetRecord("test-id")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the record does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(db.DeleteRecord("nonexistent")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("Close", func() {
		It("should not return an error", func() {
			Expect(db.Close()).NotTo(HaveOccurred())
		})
	})
})
