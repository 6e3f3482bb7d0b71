package receipt

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("writes the file and returns its name", func() {
			name, err := storage.Save("test.jpg", []byte("test file content"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("test.jpg"))
			Expect(filepath.Join(tmpDir, "test.jpg")).To(BeAnExistingFile())
		})

		It("strips path components from hostile filenames", func() {
			name, err := storage.Save("../../escape.jpg", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("escape.jpg"))
			Expect(filepath.Join(tmpDir, "escape.jpg")).To(BeAnExistingFile())
		})
	})

	Describe("Get", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("test.jpg", []byte("test file content"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns its contents", func() {
				data, err := storage.Get("test.jpg")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("test file content"))
			})
		})

		When("the file does not exist", func() {
			It("returns the error", func() {
				_, err := storage.Get("nonexistent.jpg")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("reading file"))
			})
		})
	})

	Describe("Delete", func() {
		When("the file exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("test.jpg", []byte("test content"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("removes it from disk", func() {
				Expect(storage.Delete("test.jpg")).NotTo(HaveOccurred())
				Expect(filepath.Join(tmpDir, "test.jpg")).NotTo(BeAnExistingFile())
			})

			It("makes the file inaccessible via Get", func() {
				Expect(storage.Delete("test.jpg")).NotTo(HaveOccurred())
				_, err := storage.Get("test.jpg")
				Expect(err).To(HaveOccurred())
			})
		})

		When("the file does not exist", func() {
			It("is not an error", func() {
				Expect(storage.Delete("nonexistent.jpg")).NotTo(HaveOccurred())
			})
		})
	})

	Describe("NewLocalStorage", func() {
		When("the directory does not exist", func() {
			It("creates it", func() {
				path := filepath.Join(GinkgoT().TempDir(), "receipts")
				s, err := NewLocalStorage(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(path).To(BeADirectory())

				_, err = s.Save("test.jpg", []byte("data"))
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})
})
