package pack

import "shopnav/internal/domain/pack"

type getPackInput struct {
	StoreID int64  `query:"storeId" required:"true" minimum:"1" doc:"Store the pack is built for"`
	Since   string `query:"since" doc:"Version token from the previous pull; empty for a full snapshot"`
}

type getPackOutput struct {
	Body *pack.Delta
}
