// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

/*
Package database is the DuckDB persistence layer.

It holds the catalog the recommenders learn from (products, users, orders,
order_items) and the training metadata the service owns (model_configs,
training_runs, model_versions, user_segments).

A single *DB implements every store interface the rest of the service
consumes:

  - loader.Source and fbt.BasketSource: training reads
  - segments.FeatureSource and segments.Writer: live RFM and segment rows
  - recommend.DataProvider: serving-time lookups and trending
  - training.RunRepository: training run records
  - versions.Repository: model version metadata, with single-active
    activation in one transaction
  - ConfigRepository: model configurations

Map-valued columns (hyperparameters, metrics) are stored as JSON text so
the schema does not depend on the json extension being loadable.

Every query records its duration through metrics.RecordDBQuery.
*/
package database
