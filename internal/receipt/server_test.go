package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/receiptscan/receipt-scanner/internal/pipeline"
)

func uploadForm(filename string, data []byte) (*bytes.Buffer, string) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	part, err := writer.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).NotTo(HaveOccurred())
	return &b, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		processor   *mockProcessor
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewService(db, processor, storage)
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		processor = newMockProcessor()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleHealth", func() {
		It("should return status OK", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("handleListRecords", func() {
		When("records exist", func() {
			BeforeEach(func() {
				db.records["id1"] = &Record{ID: "id1"}
				db.records["id2"] = &Record{ID: "id2"}
			})

			It("should return all records as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var records []*Record
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &records)).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
			})
		})

		When("no records exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleUploadReceipt", func() {
		When("the upload succeeds", func() {
			It("should return status Created with the record", func() {
				body, contentType := uploadForm("test.jpg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var record Record
				respBody, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(respBody, &record)).NotTo(HaveOccurred())
				Expect(record.ID).NotTo(BeEmpty())
				Expect(record.ReviewStatus).To(Equal(ReviewPending))
				Expect(record.Scan).NotTo(BeNil())
				Expect(record.Scan.Receipt.Items).To(HaveLen(1))
			})

			It("should infer the content type from the filename", func() {
				body, contentType := uploadForm("photo.pdf", []byte("fake pdf data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(processor.lastContentType).To(Equal("application/pdf"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("file"))
			})
		})

		When("the multipart form is invalid", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "multipart/form-data", bytes.NewBufferString("invalid"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Error parsing form"))
			})
		})

		When("the input cannot be read", func() {
			BeforeEach(func() {
				processor.err = fmt.Errorf("%w: unsupported image format", pipeline.ErrInputValidation)
				setupServer()
			})

			It("should return status Bad Request", func() {
				body, contentType := uploadForm("test.bin", []byte("garbage"))
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the image fails the quality gate", func() {
			BeforeEach(func() {
				processor.err = fmt.Errorf("%w: resolution too low", pipeline.ErrImageQuality)
				setupServer()
			})

			It("should return status Unprocessable Entity with the reason", func() {
				body, contentType := uploadForm("blurry.jpg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var response map[string]string
				respBody, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(respBody, &response)).NotTo(HaveOccurred())
				Expect(response["error"]).To(ContainSubstring("resolution too low"))
			})
		})

		When("the recognition engine fails", func() {
			BeforeEach(func() {
				processor.err = fmt.Errorf("%w: engine offline", pipeline.ErrEngine)
				setupServer()
			})

			It("should return status Bad Gateway", func() {
				body, contentType := uploadForm("test.jpg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetRecord", func() {
		When("the record exists", func() {
			BeforeEach(func() {
				db.records["test-id"] = &Record{ID: "test-id", ReviewStatus: ReviewPending}
			})

			It("should return it as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/test-id")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var got Record
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &got)).NotTo(HaveOccurred())
				Expect(got.ID).To(Equal("test-id"))
			})
		})

		When("the record does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetRecordFile", func() {
		When("record and file exist", func() {
			BeforeEach(func() {
				db.records["test-id"] = &Record{
					ID:          "test-id",
					Filename:    "test-file.jpg",
					ContentType: "image/jpeg",
				}
				storage.files["test-file.jpg"] = []byte("file content")
			})

			It("should return the file with its content type", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/test-id/file")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))

				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal("file content"))
			})
		})

		When("the record does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nonexistent/file")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleDeleteRecord", func() {
		When("deletion succeeds", func() {
			BeforeEach(func() {
				db.records["test-id"] = &Record{ID: "test-id", Filename: "test-file.jpg"}
				storage.files["test-file.jpg"] = []byte("data")
			})

			It("should return status No Content and remove the record", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/test-id", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

				_, getErr := service.GetRecord("test-id")
				Expect(getErr).To(MatchError(ErrNotFound))
			})
		})

		When("the record does not exist", func() {
			It("should return status Not Found", func() {
				req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/nonexistent", nil)
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("handleReviewRecord", func() {
		BeforeEach(func() {
			db.records["test-id"] = &Record{ID: "test-id", ReviewStatus: ReviewPending}
		})

		When("approving a record", func() {
			It("should return the updated record", func() {
				body, _ := json.Marshal(map[string]string{"status": "approved", "note": "verified by hand"})
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts/test-id/review", "application/json", bytes.NewBuffer(body))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var got Record
				respBody, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(respBody, &got)).NotTo(HaveOccurred())
				Expect(got.ReviewStatus).To(Equal(ReviewApproved))
				Expect(got.ReviewNote).To(Equal("verified by hand"))
			})
		})

		When("the status is unknown", func() {
			It("should return status Bad Request", func() {
				body, _ := json.Marshal(map[string]string{"status": "maybe"})
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts/test-id/review", "application/json", bytes.NewBuffer(body))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts/test-id/review", "application/json", bytes.NewBufferString("not json"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the record does not exist", func() {
			It("should return status Not Found", func() {
				body, _ := json.Marshal(map[string]string{"status": "approved"})
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts/nonexistent/review", "application/json", bytes.NewBuffer(body))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})
	})

	Describe("authenticate", func() {
		When("no auth is configured", func() {
			It("should return true", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(server.authenticate(req)).To(BeTrue())
			})
		})

		When("credentials are configured", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				setupServer()
			})

			It("should accept valid credentials", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:pass"))
				req.Header.Set("Authorization", "Basic "+credentials)
				Expect(server.authenticate(req)).To(BeTrue())
			})

			It("should reject wrong credentials", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				credentials := base64.StdEncoding.EncodeToString([]byte("user:wrong"))
				req.Header.Set("Authorization", "Basic "+credentials)
				Expect(server.authenticate(req)).To(BeFalse())
			})

			It("should reject a missing header", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(server.authenticate(req)).To(BeFalse())
			})
		})
	})

	Describe("requireAuth", func() {
		When("the request is unauthorized", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				setupServer()
			})

			It("should return status Unauthorized with a challenge", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).NotTo(BeEmpty())
			})

			It("should leave the health endpoint open", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/health")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})
	})
})
