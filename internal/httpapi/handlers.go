package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/images"
)

const imageFormField = "image"

func (s *server) createShop(w http.ResponseWriter, r *http.Request) {
	var req shopDTO
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	shop, err := s.catalog.CreateShop(r.Context(), req.toDomain())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromShop(shop))
}

func (s *server) getShop(w http.ResponseWriter, r *http.Request) {
	shop, err := s.catalog.GetShop(r.Context(), mux.Vars(r)["shopID"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromShop(shop))
}

func (s *server) saveShop(w http.ResponseWriter, r *http.Request) {
	var req shopDTO
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	shop, err := s.catalog.SaveShop(r.Context(), mux.Vars(r)["shopID"], req.toDomain())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromShop(shop))
}

func (s *server) addMenuItem(w http.ResponseWriter, r *http.Request) {
	var req menuItemDTO
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	shop, err := s.catalog.AddMenuItem(r.Context(), mux.Vars(r)["shopID"], req.toDomain())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromShop(shop))
}

func (s *server) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	index, err := menuIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req menuItemDTO
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	shop, err := s.catalog.UpdateMenuItem(r.Context(), mux.Vars(r)["shopID"], index, req.toDomain())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromShop(shop))
}

func (s *server) removeMenuItem(w http.ResponseWriter, r *http.Request) {
	index, err := menuIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	shop, err := s.catalog.RemoveMenuItem(r.Context(), mux.Vars(r)["shopID"], index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromShop(shop))
}

// uploadImage принимает multipart-форму с файлом в поле "image".
func (s *server) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, images.MaxImageBytes+maxJSONBody)
	if err := r.ParseMultipartForm(images.MaxImageBytes); err != nil {
		s.writeError(w, r, errors.Join(domain.ErrMalformedInput, err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(imageFormField)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: form field %q: %v", domain.ErrMalformedInput, imageFormField, err))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	url, err := s.catalog.UploadMenuImage(
		r.Context(),
		mux.Vars(r)["shopID"],
		header.Filename,
		header.Header.Get("Content-Type"),
		file,
		header.Size,
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, imageDTO{URL: url})
}

func (s *server) listOrders(w http.ResponseWriter, r *http.Request) {
	shopID := mux.Vars(r)["shopID"]
	orders, err := s.orders.ListOrders(r.Context(), shopID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ordersDTO{ShopID: shopID, Orders: make([]orderDTO, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, fromOrder(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, timeline, err := s.orders.GetOrder(r.Context(), mux.Vars(r)["orderID"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := orderDetailsDTO{Order: fromOrder(order), Timeline: make([]timelineEventDTO, 0, len(timeline))}
	for _, event := range timeline {
		resp.Timeline = append(resp.Timeline, timelineEventDTO{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	order, err := s.orders.ChangeStatus(r.Context(), mux.Vars(r)["orderID"], domain.OrderStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromOrder(order))
}

func (s *server) signIn(w http.ResponseWriter, r *http.Request) {
	var req clerkDTO
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	clerk, err := s.clerks.SignIn(r.Context(), domain.Clerk{ID: req.ID, Email: req.Email, Name: req.Name, Image: req.Image})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromClerk(clerk))
}

func (s *server) getClerk(w http.ResponseWriter, r *http.Request) {
	clerk, err := s.clerks.Get(r.Context(), mux.Vars(r)["clerkID"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromClerk(clerk))
}

func menuIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return 0, fmt.Errorf("%w: menu index %q", domain.ErrMalformedInput, mux.Vars(r)["index"])
	}
	return index, nil
}
